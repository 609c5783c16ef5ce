package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/solcials-sync/internal/rpc"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeNode 按方法名返回预设的 result；status 非零时直接返回该 HTTP 状态码
type fakeNode struct {
	mu      sync.Mutex
	results map[string][]string
	status  int
	seen    []rpcRequest
}

func (n *fakeNode) push(method string, result string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.results == nil {
		n.results = map[string][]string{}
	}
	n.results[method] = append(n.results[method], result)
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	n.seen = append(n.seen, req)
	status := n.status
	result := "null"
	if q := n.results[req.Method]; len(q) > 0 {
		result = q[0]
		if len(q) > 1 {
			n.results[req.Method] = q[1:]
		}
	}
	n.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, req.ID, result)
}

func (n *fakeNode) last() rpcRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.seen[len(n.seen)-1]
}

func newNode(t *testing.T) (*fakeNode, *Solana) {
	t.Helper()
	node := &fakeNode{}
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	return node, New(srv.URL, WithConfirmInterval(time.Millisecond))
}

func account(data []byte) string {
	return fmt.Sprintf(`{"data":[%q,"base64"],"executable":false,"lamports":1000,"owner":"11111111111111111111111111111111","rentEpoch":0}`,
		base64.StdEncoding.EncodeToString(data))
}

var alice = solana.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")

func TestGetAccountInfo(t *testing.T) {
	node, s := newNode(t)
	node.push("getAccountInfo", `{"context":{"slot":10},"value":`+account([]byte{1, 2, 3})+`}`)
	node.push("getAccountInfo", `{"context":{"slot":11},"value":null}`)

	data, err := s.GetAccountInfo(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	_, err = s.GetAccountInfo(context.Background(), alice)
	assert.ErrorIs(t, err, rpc.ErrAccountNotFound)
}

func TestGetMultipleAccountsKeepsPositions(t *testing.T) {
	node, s := newNode(t)
	node.push("getMultipleAccounts", `{"context":{"slot":10},"value":[`+account([]byte("a"))+`,null]}`)

	got, err := s.GetMultipleAccounts(context.Background(), []solana.PublicKey{alice, solana.SystemProgramID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []byte("a"), got[0])
	assert.Nil(t, got[1])
}

func TestGetProgramAccountsSendsFilters(t *testing.T) {
	node, s := newNode(t)
	node.push("getProgramAccounts", `[{"pubkey":"`+alice.String()+`","account":`+account([]byte("post"))+`}]`)

	got, err := s.GetProgramAccounts(context.Background(), solana.SystemProgramID, []rpc.Filter{
		rpc.Memcmp(8, alice.Bytes()),
		rpc.DataSize(81),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, alice, got[0].Address)
	assert.Equal(t, []byte("post"), got[0].Data)

	req := node.last()
	require.Len(t, req.Params, 2)
	var cfg struct {
		Encoding string `json:"encoding"`
		Filters  []struct {
			Memcmp *struct {
				Offset uint64 `json:"offset"`
				Bytes  string `json:"bytes"`
			} `json:"memcmp"`
			DataSize uint64 `json:"dataSize"`
		} `json:"filters"`
	}
	require.NoError(t, json.Unmarshal(req.Params[1], &cfg))
	assert.Equal(t, "base64", cfg.Encoding)
	require.Len(t, cfg.Filters, 2)
	require.NotNil(t, cfg.Filters[0].Memcmp)
	assert.EqualValues(t, 8, cfg.Filters[0].Memcmp.Offset)
	assert.Equal(t, alice.String(), cfg.Filters[0].Memcmp.Bytes)
	assert.EqualValues(t, 81, cfg.Filters[1].DataSize)
}

func TestHTTP429MapsToRateLimitExceeded(t *testing.T) {
	node, s := newNode(t)
	node.status = http.StatusTooManyRequests

	_, err := s.GetLatestBlockhash(context.Background())
	assert.ErrorIs(t, err, rpc.ErrRateLimitExceeded)
}

func TestConfirmTransactionPollsUntilConfirmed(t *testing.T) {
	node, s := newNode(t)
	node.push("getSignatureStatuses", `{"context":{"slot":1},"value":[null]}`)
	node.push("getSignatureStatuses", `{"context":{"slot":2},"value":[{"slot":2,"confirmations":1,"err":null,"confirmationStatus":"processed"}]}`)
	node.push("getSignatureStatuses", `{"context":{"slot":3},"value":[{"slot":2,"confirmations":null,"err":null,"confirmationStatus":"confirmed"}]}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.ConfirmTransaction(ctx, solana.Signature{}))
	assert.Len(t, node.seen, 3)
}

func TestConfirmTransactionReportsFailure(t *testing.T) {
	node, s := newNode(t)
	node.push("getSignatureStatuses", `{"context":{"slot":3},"value":[{"slot":2,"confirmations":null,"err":{"InstructionError":[0,{"Custom":1}]},"confirmationStatus":"confirmed"}]}`)

	err := s.ConfirmTransaction(context.Background(), solana.Signature{})
	assert.ErrorIs(t, err, rpc.ErrTransactionFailed)
}

func TestGetTransaction(t *testing.T) {
	node, s := newNode(t)
	raw := []byte{0xde, 0xad, 0xbe, 0xef}
	node.push("getTransaction", fmt.Sprintf(`{"slot":42,"blockTime":1714564800,"transaction":[%q,"base64"],"meta":{"err":null,"fee":5000,"preBalances":[],"postBalances":[]}}`,
		base64.StdEncoding.EncodeToString(raw)))

	d, err := s.GetTransaction(context.Background(), solana.Signature{})
	require.NoError(t, err)
	assert.EqualValues(t, 42, d.Slot)
	assert.EqualValues(t, 1714564800, d.BlockTime)
	assert.Equal(t, raw, d.Raw)
	assert.False(t, d.Failed)

	var cfg map[string]interface{}
	require.NoError(t, json.Unmarshal(node.last().Params[1], &cfg))
	assert.Equal(t, "base64", cfg["encoding"])
	assert.EqualValues(t, 0, cfg["maxSupportedTransactionVersion"])

	_, err = s.GetTransaction(context.Background(), solana.Signature{})
	require.NoError(t, err)
}

func TestGetTransactionNotFound(t *testing.T) {
	_, s := newNode(t)
	_, err := s.GetTransaction(context.Background(), solana.Signature{})
	assert.ErrorIs(t, err, rpc.ErrTransactionNotFound)
}
