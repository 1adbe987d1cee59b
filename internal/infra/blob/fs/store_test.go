package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"estatecore/internal/blob/core"
)

func TestFilesystemStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "blobs")
	s, err := New(root)
	require.NoError(t, err)
	require.Equal(t, core.DriverFilesystem, s.Driver())
	require.Equal(t, root, s.Root())

	info, err := s.Put(ctx, "partners/p1/documents/contract.pdf", strings.NewReader("%PDF"), core.PutOptions{ContentType: "application/pdf"})
	require.NoError(t, err)
	require.EqualValues(t, 4, info.Size)
	require.NotEmpty(t, info.Checksum)

	_, err = os.Stat(filepath.Join(root, "partners", "p1", "documents", "contract.pdf.meta"))
	require.NoError(t, err)

	_, err = s.Put(ctx, "partners/p1/documents/contract.pdf", strings.NewReader("x"), core.PutOptions{})
	require.ErrorIs(t, err, core.ErrExists)

	got, rc, err := s.Get(ctx, "partners/p1/documents/contract.pdf")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "%PDF", string(body))
	require.Equal(t, "application/pdf", got.ContentType)
	require.Equal(t, info.Checksum, got.Checksum)

	list, err := s.List(ctx, "partners/")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "partners/p1/documents/contract.pdf", list[0].Key)

	existed, err := s.Delete(ctx, "partners/p1/documents/contract.pdf")
	require.NoError(t, err)
	require.True(t, existed)
	existed, err = s.Delete(ctx, "partners/p1/documents/contract.pdf")
	require.NoError(t, err)
	require.False(t, existed)

	_, _, err = s.Get(ctx, "partners/p1/documents/contract.pdf")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestFilesystemStoreRejectsEscapingKeys(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"", "/etc/passwd", "../outside", "a/../../b", "x.meta"} {
		_, err := s.Put(context.Background(), key, strings.NewReader("x"), core.PutOptions{})
		require.ErrorIs(t, err, core.ErrInvalidKey, key)
	}
}
