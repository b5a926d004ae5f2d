// Package watcher keeps the index in step with the corpus directory.
//
// A Watcher follows the corpus with fsnotify, drops events for hidden or
// unsupported files, and debounces bursts (editors and scanners write a
// file several times) into batches. Run feeds each batch to an Ingester,
// merging created or modified documents into the index.
//
// Usage:
//
//	w, err := watcher.New(watcher.Options{Debounce: cfg.Watch.Debounce, Filter: cfg.HasExtension})
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go func() { _ = w.Start(ctx, cfg.CorpusPath()) }()
//	return watcher.Run(ctx, w, svc)
package watcher
