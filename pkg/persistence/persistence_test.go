package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	State string `json:"state"`
	Step  int    `json:"step"`
}

func testService(t *testing.T, svc Service) {
	t.Helper()
	acct := "0xabc"

	var got record
	assert.ErrorIs(t, svc.NewStore("saga", acct, "buy-7").Load(&got), ErrNotExists)

	require.NoError(t, svc.NewStore("saga", acct, "buy-7").Save(record{State: "approved", Step: 1}))
	require.NoError(t, svc.NewStore("saga", acct, "list-3").Save(record{State: "pending"}))
	require.NoError(t, svc.NewStore("saga", "0xother", "buy-1").Save(record{State: "acted"}))

	require.NoError(t, svc.NewStore("saga", acct, "buy-7").Load(&got))
	assert.Equal(t, record{State: "approved", Step: 1}, got)

	tags, err := svc.Tags("saga", acct)
	require.NoError(t, err)
	assert.Equal(t, []string{"buy-7", "list-3"}, tags)

	require.NoError(t, svc.NewStore("saga", acct, "buy-7").Delete())
	require.NoError(t, svc.NewStore("saga", acct, "buy-7").Delete(), "deleting twice is fine")
	tags, err = svc.Tags("saga", acct)
	require.NoError(t, err)
	assert.Equal(t, []string{"list-3"}, tags)
}

func TestJSONFileService(t *testing.T) {
	testService(t, NewJSONFileService(t.TempDir()))
}

func TestJSONFileServiceMissingDir(t *testing.T) {
	svc := NewJSONFileService(t.TempDir() + "/not-created")
	tags, err := svc.Tags("saga", "x")
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestMemoryService(t *testing.T) {
	testService(t, NewMemoryService())
}
