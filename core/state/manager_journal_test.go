package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"billfactor/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.MemDB) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db), db
}

func TestJournalCommitAndDiscard(t *testing.T) {
	mgr, db := newTestManager(t)

	require.NoError(t, mgr.KVPut([]byte("a"), uint64(7)))
	var got uint64
	ok, err := mgr.KVGet([]byte("a"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7), got)
	require.Equal(t, 0, db.Len(), "staged writes must not reach the store")

	require.NoError(t, mgr.Commit())
	require.Equal(t, 1, db.Len())
	require.Zero(t, mgr.Pending())

	require.NoError(t, mgr.KVPut([]byte("a"), uint64(9)))
	require.NoError(t, mgr.KVPut([]byte("b"), uint64(1)))
	mgr.Discard()

	ok, err = mgr.KVGet([]byte("a"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7), got)
	ok, err = mgr.KVGet([]byte("b"), &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestJournalDeleteShadowsStore(t *testing.T) {
	mgr, db := newTestManager(t)
	require.NoError(t, mgr.KVPut([]byte("k"), "v"))
	require.NoError(t, mgr.Commit())

	require.NoError(t, mgr.KVDelete([]byte("k")))
	ok, err := mgr.KVGet([]byte("k"), nil)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, db.Len())

	require.NoError(t, mgr.Commit())
	require.Equal(t, 0, db.Len())
}

func TestKVAppendAndRemove(t *testing.T) {
	mgr, _ := newTestManager(t)
	key := []byte("list")
	require.NoError(t, mgr.KVAppend(key, []byte{1}))
	require.NoError(t, mgr.KVAppend(key, []byte{2}))
	require.NoError(t, mgr.KVAppend(key, []byte{1}))

	var list [][]byte
	require.NoError(t, mgr.KVGetList(key, &list))
	require.Equal(t, [][]byte{{1}, {2}}, list)

	require.NoError(t, mgr.KVRemove(key, []byte{1}))
	require.NoError(t, mgr.KVGetList(key, &list))
	require.Equal(t, [][]byte{{2}}, list)

	require.NoError(t, mgr.KVRemove(key, []byte{2}))
	var empty [][]byte
	require.NoError(t, mgr.KVGetList(key, &empty))
	require.NotNil(t, empty)
	require.Empty(t, empty)
}

func TestBalancesRequireRegisteredToken(t *testing.T) {
	mgr, _ := newTestManager(t)
	addr := []byte{0x01}
	require.Error(t, mgr.SetBalance(addr, "USDC", big.NewInt(5)))

	require.NoError(t, mgr.RegisterToken("usdc", "USD Coin", 6))
	require.True(t, mgr.TokenExists("USDC"))
	require.Error(t, mgr.RegisterToken("USDC", "dup", 6))
	require.NoError(t, mgr.SetBalance(addr, "usdc", big.NewInt(5)))
	require.Error(t, mgr.SetBalance(addr, "USDC", big.NewInt(-1)))

	bal, err := mgr.Balance(addr, "USDC")
	require.NoError(t, err)
	require.Equal(t, "5", bal.String())

	tokens, err := mgr.TokenList()
	require.NoError(t, err)
	require.Equal(t, []string{"USDC"}, tokens)
}

func TestRoles(t *testing.T) {
	mgr, _ := newTestManager(t)
	a := []byte{0x0a}
	b := []byte{0x0b}
	require.NoError(t, mgr.SetRole("admin", b))
	require.NoError(t, mgr.SetRole("admin", a))
	require.NoError(t, mgr.SetRole("admin", a))
	members, err := mgr.RoleMembers("admin")
	require.NoError(t, err)
	require.Equal(t, [][]byte{a, b}, members)
	require.True(t, mgr.HasRole("admin", a))

	require.NoError(t, mgr.RemoveRole("admin", a))
	require.False(t, mgr.HasRole("admin", a))
	require.True(t, mgr.HasRole("admin", b))
	require.Error(t, mgr.SetRole(" ", a))
}
