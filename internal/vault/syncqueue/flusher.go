package syncqueue

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/mschirtzinger/sessionvault/internal/vault/conflict"
	"github.com/mschirtzinger/sessionvault/internal/vault/schema"
	"github.com/mschirtzinger/sessionvault/internal/vault/storage"
)

// ErrNotRemote is returned by the adapter flusher when the current handle
// is not a remote adapter.
var ErrNotRemote = schema.NewTransportError(string(storage.KindRemote), "flush", fmt.Errorf("remote adapter not bound"))

// NewAdapterFlusher returns the production FlushFunc.
//
// For each session in the batch (first-seen order) the patches are merged,
// the local and remote copies are reconciled, the merged patch is applied on
// top and the result is saved remotely. Sessions missing from the local
// store are skipped. The batch fails on the first error.
func NewAdapterFlusher(local storage.Adapter, current func() storage.Handle, logger *log.Logger) FlushFunc {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}

	return func(ctx context.Context, batch []Change) error {
		h := current()
		if !h.IsRemote() {
			return ErrNotRemote
		}

		var order []string
		patches := make(map[string]schema.Patch)
		for _, c := range batch {
			if p, ok := patches[c.SessionID]; ok {
				patches[c.SessionID] = p.Merge(c.Data)
				continue
			}
			order = append(order, c.SessionID)
			patches[c.SessionID] = c.Data
		}

		for _, id := range order {
			if err := pushSession(ctx, local, h.Adapter, id, patches[id], logger); err != nil {
				return fmt.Errorf("session %s: %w", id, err)
			}
		}
		return nil
	}
}

func pushSession(ctx context.Context, local, remote storage.Adapter, id string, patch schema.Patch, logger *log.Logger) error {
	localCopy, err := local.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if localCopy == nil {
		// Deleted locally after it was queued.
		logger.Printf("Session %s no longer exists locally, skipping", id)
		return nil
	}
	remoteCopy, err := remote.GetSession(ctx, id)
	if err != nil {
		return err
	}

	sess, res := conflict.Reconcile(localCopy, remoteCopy)
	if res.HadConflict && remoteCopy != nil {
		logger.Printf("Session %s diverged, keeping %s copy", id, res.Winner)
	}

	patch.Apply(sess)
	_, err = remote.SaveSession(ctx, sess)
	return err
}
