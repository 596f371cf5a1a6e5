package catalogsync

import (
	"bytes"

	"github.com/gabriel-vasile/mimetype"

	"github.com/mrlokans/epubshelf/internal/entities"
	"github.com/mrlokans/epubshelf/internal/remote"
)

type ActionKind string

const (
	ActionAddLocal    ActionKind = "add_local"
	ActionUpdateLocal ActionKind = "update_local"
	ActionPush        ActionKind = "push"
	ActionPatchRemote ActionKind = "patch_remote"
	ActionUploadCover ActionKind = "upload_cover"
	ActionUploadFile  ActionKind = "upload_file"
)

// Action is one step of a reconciliation.
type Action struct {
	Kind     ActionKind
	Key      entities.BookKey
	LocalID  uint
	RemoteID uint
	// Book is the record to store locally (add/update) or to create remotely (push).
	Book  *entities.Book
	Patch remote.Patch
	Data  []byte
}

// Remote reports whether the action writes to the remote catalog.
func (a Action) Remote() bool {
	switch a.Kind {
	case ActionPush, ActionPatchRemote, ActionUploadCover, ActionUploadFile:
		return true
	}
	return false
}

// PlanReconciliation computes the actions that bring both catalogs into
// agreement. Books are matched by title and author. Remote values win for
// scalar fields it carries; blobs flow to whichever side lacks them. A local
// cover is uploaded when it differs from the cover the remote reports or,
// when the remote omits covers, from the last cover it accepted.
// Planning against the result of applying a plan yields no actions.
func PlanReconciliation(local []entities.Book, remoteBooks []remote.Book) []Action {
	localByKey := make(map[entities.BookKey]*entities.Book, len(local))
	for i := range local {
		key := local[i].Key()
		if _, dup := localByKey[key]; !dup {
			localByKey[key] = &local[i]
		}
	}

	var actions []Action
	remoteByKey := make(map[entities.BookKey]*remote.Book, len(remoteBooks))
	for i := range remoteBooks {
		r := &remoteBooks[i]
		key := entities.BookKey{Title: r.Title, Author: r.Author}
		if _, dup := remoteByKey[key]; dup {
			continue
		}
		remoteByKey[key] = r

		l, ok := localByKey[key]
		if !ok {
			actions = append(actions, Action{Kind: ActionAddLocal, Key: key, RemoteID: r.ID, Book: fromRemote(r)})
			continue
		}
		actions = append(actions, diff(l, r)...)
	}

	seen := make(map[entities.BookKey]bool, len(local))
	for i := range local {
		l := &local[i]
		key := l.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		if _, ok := remoteByKey[key]; ok {
			continue
		}
		book := *l
		actions = append(actions, Action{Kind: ActionPush, Key: key, Book: &book})
	}

	return actions
}

func diff(l *entities.Book, r *remote.Book) []Action {
	key := l.Key()
	var actions []Action

	updated := *l
	changed := false
	if r.Progress != nil && (l.Progress == nil || *l.Progress != *r.Progress) {
		updated.Progress = entities.FloatPtr(*r.Progress)
		changed = true
	}
	if r.Favorite != nil && (l.Favorite == nil || *l.Favorite != *r.Favorite) {
		updated.Favorite = entities.BoolPtr(*r.Favorite)
		changed = true
	}
	if len(r.CoverBlob) > 0 && len(l.CoverBlob) == 0 {
		updated.CoverBlob = r.CoverBlob
		updated.CoverMediaType = mimetype.Detect(r.CoverBlob).String()
		updated.CoverSyncedHash = entities.CoverHash(r.CoverBlob)
		changed = true
	}
	if changed {
		actions = append(actions, Action{Kind: ActionUpdateLocal, Key: key, RemoteID: r.ID, Book: &updated})
	}

	var patch remote.Patch
	if r.Progress == nil && l.Progress != nil {
		patch.Progress = entities.FloatPtr(*l.Progress)
	}
	if r.Favorite == nil && l.Favorite != nil {
		patch.Favorite = entities.BoolPtr(*l.Favorite)
	}
	if !patch.Empty() {
		actions = append(actions, Action{Kind: ActionPatchRemote, Key: key, RemoteID: r.ID, Patch: patch})
	}

	if coverNeedsUpload(l, r) {
		actions = append(actions, Action{Kind: ActionUploadCover, Key: key, LocalID: l.ID, RemoteID: r.ID, Data: l.CoverBlob})
	}
	if len(l.FileBlob) > 0 && !r.FileUploaded {
		actions = append(actions, Action{Kind: ActionUploadFile, Key: key, RemoteID: r.ID, Data: l.FileBlob})
	}
	return actions
}

func coverNeedsUpload(l *entities.Book, r *remote.Book) bool {
	if !l.HasCover() {
		return false
	}
	if len(r.CoverBlob) > 0 {
		return !bytes.Equal(l.CoverBlob, r.CoverBlob)
	}
	return !l.CoverSynced()
}

func fromRemote(r *remote.Book) *entities.Book {
	b := &entities.Book{Title: r.Title, Author: r.Author}
	if r.Progress != nil {
		b.Progress = entities.FloatPtr(*r.Progress)
	}
	if r.Favorite != nil {
		b.Favorite = entities.BoolPtr(*r.Favorite)
	}
	if len(r.CoverBlob) > 0 {
		b.CoverBlob = r.CoverBlob
		b.CoverMediaType = mimetype.Detect(r.CoverBlob).String()
		b.CoverSyncedHash = entities.CoverHash(r.CoverBlob)
	}
	return b
}

// ToRemote converts a local record to its remote scalar representation.
func ToRemote(b *entities.Book) remote.Book {
	return remote.Book{
		Title:    b.Title,
		Author:   b.Author,
		Progress: b.Progress,
		Favorite: b.Favorite,
	}
}
