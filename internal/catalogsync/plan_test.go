package catalogsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/epubshelf/internal/entities"
	"github.com/mrlokans/epubshelf/internal/remote"
)

var pngCover = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 0x49, 0x48, 0x44, 0x52}

func kinds(actions []Action) []ActionKind {
	out := make([]ActionKind, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.Kind)
	}
	return out
}

// simulate applies actions the way a well-behaved remote catalog would.
func simulate(local []entities.Book, remoteBooks []remote.Book, actions []Action) ([]entities.Book, []remote.Book) {
	local = append([]entities.Book(nil), local...)
	remoteBooks = append([]remote.Book(nil), remoteBooks...)
	nextID := uint(1000)

	findRemote := func(id uint) *remote.Book {
		for i := range remoteBooks {
			if remoteBooks[i].ID == id {
				return &remoteBooks[i]
			}
		}
		return nil
	}

	for _, a := range actions {
		switch a.Kind {
		case ActionAddLocal:
			local = append(local, *a.Book)
		case ActionUpdateLocal:
			for i := range local {
				if local[i].Key() == a.Key {
					local[i] = *a.Book
				}
			}
		case ActionPush:
			nextID++
			rb := ToRemote(a.Book)
			rb.ID = nextID
			rb.CoverBlob = a.Book.CoverBlob
			rb.FileUploaded = a.Book.HasFile()
			remoteBooks = append(remoteBooks, rb)
			for i := range local {
				if local[i].Key() == a.Key && local[i].HasCover() {
					local[i].CoverSyncedHash = entities.CoverHash(local[i].CoverBlob)
				}
			}
		case ActionPatchRemote:
			rb := findRemote(a.RemoteID)
			if a.Patch.Progress != nil {
				rb.Progress = a.Patch.Progress
			}
			if a.Patch.Favorite != nil {
				rb.Favorite = a.Patch.Favorite
			}
		case ActionUploadCover:
			findRemote(a.RemoteID).CoverBlob = a.Data
			for i := range local {
				if local[i].ID == a.LocalID {
					local[i].CoverSyncedHash = entities.CoverHash(a.Data)
				}
			}
		case ActionUploadFile:
			findRemote(a.RemoteID).FileUploaded = true
		}
	}
	return local, remoteBooks
}

func TestPlanReconciliation_RemoteOnlyIsAddedLocally(t *testing.T) {
	actions := PlanReconciliation(nil, []remote.Book{
		{ID: 1, Title: "Emma", Author: "Austen", Progress: entities.FloatPtr(3.2), CoverBlob: pngCover},
	})

	require.Len(t, actions, 1)
	a := actions[0]
	assert.Equal(t, ActionAddLocal, a.Kind)
	assert.Equal(t, "Emma", a.Book.Title)
	assert.Equal(t, 3.2, *a.Book.Progress)
	assert.Equal(t, pngCover, a.Book.CoverBlob)
	assert.Equal(t, "image/png", a.Book.CoverMediaType)
	assert.False(t, a.Remote())
}

func TestPlanReconciliation_LocalOnlyIsPushed(t *testing.T) {
	actions := PlanReconciliation([]entities.Book{
		{ID: 4, Title: "Neuromancer", Author: "Gibson", FileBlob: []byte("epub")},
	}, nil)

	require.Len(t, actions, 1)
	assert.Equal(t, ActionPush, actions[0].Kind)
	assert.True(t, actions[0].Remote())
	assert.Equal(t, []byte("epub"), actions[0].Book.FileBlob)
}

func TestPlanReconciliation_RemoteWinsForScalars(t *testing.T) {
	local := []entities.Book{{ID: 1, Title: "Dune", Author: "Herbert", Progress: entities.FloatPtr(1.0), Favorite: entities.BoolPtr(false)}}
	remoteBooks := []remote.Book{{ID: 9, Title: "Dune", Author: "Herbert", Progress: entities.FloatPtr(2.0), Favorite: entities.BoolPtr(true)}}

	actions := PlanReconciliation(local, remoteBooks)

	require.Equal(t, []ActionKind{ActionUpdateLocal}, kinds(actions))
	assert.Equal(t, 2.0, *actions[0].Book.Progress)
	assert.True(t, *actions[0].Book.Favorite)
	assert.Equal(t, uint(1), actions[0].Book.ID)
	assert.Equal(t, 1.0, *local[0].Progress, "input is not mutated")
}

func TestPlanReconciliation_LocalOnlyFieldsArePatched(t *testing.T) {
	local := []entities.Book{{ID: 1, Title: "Dune", Author: "Herbert", Progress: entities.FloatPtr(1.5)}}
	remoteBooks := []remote.Book{{ID: 9, Title: "Dune", Author: "Herbert"}}

	actions := PlanReconciliation(local, remoteBooks)

	require.Equal(t, []ActionKind{ActionPatchRemote}, kinds(actions))
	assert.Equal(t, uint(9), actions[0].RemoteID)
	assert.Equal(t, 1.5, *actions[0].Patch.Progress)
	assert.Nil(t, actions[0].Patch.Favorite)
}

func TestPlanReconciliation_Blobs(t *testing.T) {
	t.Run("missing remote blobs are uploaded", func(t *testing.T) {
		local := []entities.Book{{Title: "Dune", Author: "Herbert", CoverBlob: pngCover, FileBlob: []byte("epub")}}
		remoteBooks := []remote.Book{{ID: 9, Title: "Dune", Author: "Herbert"}}

		actions := PlanReconciliation(local, remoteBooks)
		assert.Equal(t, []ActionKind{ActionUploadCover, ActionUploadFile}, kinds(actions))
	})

	t.Run("uploaded file is not re-sent", func(t *testing.T) {
		local := []entities.Book{{Title: "Dune", Author: "Herbert", CoverBlob: pngCover, FileBlob: []byte("epub")}}
		remoteBooks := []remote.Book{{ID: 9, Title: "Dune", Author: "Herbert", CoverBlob: pngCover, FileUploaded: true}}

		assert.Empty(t, PlanReconciliation(local, remoteBooks))
	})

	t.Run("changed local cover is re-uploaded alone", func(t *testing.T) {
		local := []entities.Book{{Title: "Dune", Author: "Herbert", CoverBlob: []byte("new cover"), FileBlob: []byte("epub")}}
		remoteBooks := []remote.Book{{ID: 9, Title: "Dune", Author: "Herbert", CoverBlob: pngCover, FileUploaded: true}}

		actions := PlanReconciliation(local, remoteBooks)
		require.Equal(t, []ActionKind{ActionUploadCover}, kinds(actions))
		assert.Equal(t, []byte("new cover"), actions[0].Data)
	})

	t.Run("remote cover fills a missing local cover", func(t *testing.T) {
		local := []entities.Book{{ID: 3, Title: "Dune", Author: "Herbert"}}
		remoteBooks := []remote.Book{{ID: 9, Title: "Dune", Author: "Herbert", CoverBlob: pngCover}}

		actions := PlanReconciliation(local, remoteBooks)
		require.Equal(t, []ActionKind{ActionUpdateLocal}, kinds(actions))
		assert.Equal(t, pngCover, actions[0].Book.CoverBlob)
		assert.True(t, actions[0].Book.CoverSynced())
	})

	t.Run("remote without cover field gets an unsynced cover", func(t *testing.T) {
		local := []entities.Book{{ID: 3, Title: "Dune", Author: "Herbert", CoverBlob: pngCover}}
		remoteBooks := []remote.Book{{ID: 9, Title: "Dune", Author: "Herbert"}}

		actions := PlanReconciliation(local, remoteBooks)
		require.Equal(t, []ActionKind{ActionUploadCover}, kinds(actions))
		assert.Equal(t, uint(3), actions[0].LocalID)
		assert.Equal(t, uint(9), actions[0].RemoteID)
	})

	t.Run("remote without cover field skips a synced cover", func(t *testing.T) {
		local := []entities.Book{{ID: 3, Title: "Dune", Author: "Herbert", CoverBlob: pngCover, CoverSyncedHash: entities.CoverHash(pngCover)}}
		remoteBooks := []remote.Book{{ID: 9, Title: "Dune", Author: "Herbert"}}

		assert.Empty(t, PlanReconciliation(local, remoteBooks))

		local[0].CoverBlob = []byte("new cover")
		assert.Equal(t, []ActionKind{ActionUploadCover}, kinds(PlanReconciliation(local, remoteBooks)))
	})
}

func TestPlanReconciliation_DuplicateKeysUseFirst(t *testing.T) {
	remoteBooks := []remote.Book{
		{ID: 1, Title: "Dune", Author: "Herbert"},
		{ID: 2, Title: "Dune", Author: "Herbert", Progress: entities.FloatPtr(4)},
	}
	actions := PlanReconciliation(nil, remoteBooks)
	require.Len(t, actions, 1)
	assert.Equal(t, uint(1), actions[0].RemoteID)
}

func TestPlanReconciliation_Idempotent(t *testing.T) {
	local := []entities.Book{
		{ID: 1, Title: "Dune", Author: "Herbert", Progress: entities.FloatPtr(1.5), FileBlob: []byte("dune")},
		{ID: 2, Title: "Neuromancer", Author: "Gibson", CoverBlob: pngCover, FileBlob: []byte("neuro")},
		{ID: 3, Title: "Solaris", Author: "Lem", Favorite: entities.BoolPtr(true), Progress: entities.FloatPtr(0.3)},
	}
	remoteBooks := []remote.Book{
		{ID: 7, Title: "Emma", Author: "Austen", Progress: entities.FloatPtr(3.2), CoverBlob: pngCover, FileUploaded: true},
		{ID: 8, Title: "Dune", Author: "Herbert", Favorite: entities.BoolPtr(true)},
		{ID: 9, Title: "Solaris", Author: "Lem", Progress: entities.FloatPtr(4.75), CoverBlob: pngCover},
	}

	first := PlanReconciliation(local, remoteBooks)
	require.NotEmpty(t, first)

	local, remoteBooks = simulate(local, remoteBooks, first)
	assert.Empty(t, PlanReconciliation(local, remoteBooks))
	assert.Len(t, local, 4)
	assert.Len(t, remoteBooks, 4)
}

func TestPlanReconciliation_IdempotentWhenRemoteOmitsCovers(t *testing.T) {
	withoutCovers := func(books []remote.Book) []remote.Book {
		out := append([]remote.Book(nil), books...)
		for i := range out {
			out[i].CoverBlob = nil
		}
		return out
	}
	local := []entities.Book{
		{ID: 1, Title: "Dune", Author: "Herbert", CoverBlob: pngCover, FileBlob: []byte("dune")},
		{ID: 2, Title: "Neuromancer", Author: "Gibson", CoverBlob: pngCover},
	}
	remoteBooks := []remote.Book{{ID: 8, Title: "Dune", Author: "Herbert", FileUploaded: true}}

	first := PlanReconciliation(local, remoteBooks)
	assert.Equal(t, []ActionKind{ActionUploadCover, ActionPush}, kinds(first))

	local, remoteBooks = simulate(local, remoteBooks, first)
	assert.Empty(t, PlanReconciliation(local, withoutCovers(remoteBooks)))
}

func TestWriteStatus_Outcome(t *testing.T) {
	tests := []struct {
		name     string
		status   WriteStatus
		level    Level
		expected string
	}{
		{"both succeeded", WriteStatus{Online: true, RemoteReachable: true, RemoteAttempted: true, Remote: true, Local: true}, LevelSuccess, MsgSaved},
		{"offline", WriteStatus{Local: true}, LevelWarning, MsgSavedOffline},
		{"remote failed", WriteStatus{Online: true, RemoteReachable: true, RemoteAttempted: true, Local: true}, LevelWarning, MsgSavedBackendError},
		{"remote unreachable", WriteStatus{Online: true, Local: true}, LevelWarning, MsgSavedBackendDown},
		{"local failed", WriteStatus{Online: true, RemoteReachable: true, RemoteAttempted: true, Remote: true}, LevelError, MsgFailed},
		{"both failed offline", WriteStatus{}, LevelError, MsgFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := tt.status.Outcome()
			assert.Equal(t, tt.level, n.Level)
			assert.Equal(t, tt.expected, n.Message)
		})
	}
}

func TestNoticeBuffer(t *testing.T) {
	buf := NewNoticeBuffer(2)
	buf.Notify(Notice{Message: "a"})
	buf.Notify(Notice{Message: "b"})
	buf.Notify(Notice{Message: "c"})

	recent := buf.Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].Message)
	assert.Equal(t, "c", recent[1].Message)

	assert.Equal(t, []Notice{{Message: "c"}}, buf.Recent(1))
}
