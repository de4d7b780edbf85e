package delegate

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"pkt.systems/pslog"

	"github.com/textgrab/textgrab/internal/model"
)

// WatchForHelper watches the candidate directories until a helper binary of
// the given width appears, then invokes found with its path. Used in the
// degraded socket-only mode so dropping the helper next to the executable
// upgrades the session without a restart. Returns immediately when no
// candidate directory exists yet; cancellation of ctx ends the watch.
func WatchForHelper(ctx context.Context, bits model.Bits, extra []string, found func(path string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	candidates := make(map[string]struct{})
	dirs := make(map[string]struct{})
	for _, p := range CandidatePaths(bits, extra) {
		candidates[filepath.Clean(p)] = struct{}{}
		dirs[filepath.Dir(p)] = struct{}{}
	}
	watching := 0
	for dir := range dirs {
		if err := w.Add(dir); err == nil {
			watching++
		}
	}
	if watching == 0 {
		w.Close()
		return ErrHelperNotFound
	}

	log := pslog.Ctx(ctx)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
					continue
				}
				p := filepath.Clean(ev.Name)
				if _, want := candidates[p]; !want {
					continue
				}
				if st, err := os.Stat(p); err != nil || st.IsDir() {
					continue
				}
				log.Info("helper binary appeared", "path", p)
				found(p)
				return
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("helper watch error", "error", err.Error())
			}
		}
	}()
	return nil
}
