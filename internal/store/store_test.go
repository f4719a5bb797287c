package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridocs/reviewd/internal/session"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := New(Config{Root: t.TempDir()}, nil)
	require.NoError(t, err)
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := session.NewSession("sess-1")
	sess.Metadata = map[string]string{"project": "C06-4997"}
	require.NoError(t, s.PutSession(ctx, sess))

	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "C06-4997", got.Metadata["project"])
	assert.Equal(t, session.StageInitialize, got.CurrentStage)
}

func TestGetSession_Missing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetSession(context.Background(), "ghost")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestPutSession_Overwrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := session.NewSession("sess-1")
	require.NoError(t, s.PutSession(ctx, sess))

	sess.CurrentStage = session.StageDiscover
	require.NoError(t, s.PutSession(ctx, sess))

	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, session.StageDiscover, got.CurrentStage)
}

func TestListSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSession(ctx, session.NewSession("b")))
	require.NoError(t, s.PutSession(ctx, session.NewSession("a")))

	ids, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestArtifactRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	type payload struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}

	require.NoError(t, s.PutJSON(ctx, "sess-1", "documents.json", payload{Name: "x", N: 3}))

	var got payload
	require.NoError(t, s.GetJSON(ctx, "sess-1", "documents.json", &got))
	assert.Equal(t, payload{Name: "x", N: 3}, got)
}

func TestGetJSON_Missing(t *testing.T) {
	s := newTestStore(t)

	var v map[string]any
	err := s.GetJSON(context.Background(), "sess-1", "missing.json", &v)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNamesCannotEscapeRoot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var v map[string]any
	assert.Error(t, s.GetJSON(ctx, "sess-1", "../secrets.json", &v))
	assert.Error(t, s.GetJSON(ctx, "../sess-1", "a.json", &v))
	assert.Error(t, s.PutJSON(ctx, "sess-1", "sub/dir.json", v))

	_, err := s.GetSession(ctx, "../../etc")
	assert.Error(t, err)
}

func TestWritesLeaveNoTempFiles(t *testing.T) {
	root := t.TempDir()
	s, err := New(Config{Root: root}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.PutSession(ctx, session.NewSession("sess-1")))
	require.NoError(t, s.PutJSON(ctx, "sess-1", "a.json", map[string]int{"n": 1}))

	var leftovers []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Base(path)[0] == '.' {
			leftovers = append(leftovers, path)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}
