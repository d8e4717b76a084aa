package rpc

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"arthchain/core/types"
	"arthchain/native/oracle"
)

type staticOracle struct {
	price *big.Int
}

func (o staticOracle) GetPrice() (*big.Int, error) {
	return new(big.Int).Set(o.price), nil
}

func newPriceServer(t *testing.T, owner types.Address) *Server {
	t.Helper()
	feed := oracle.NewSimpleOracle(owner, 0)
	require.NoError(t, feed.SetPrice(owner, big.NewInt(1e18)))
	return NewServer(Config{ListenAddress: "127.0.0.1:0", Oracle: feed, Burst: 100})
}

func postPrice(srv *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/treasury/price", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestSetPriceUpdatesOracle(t *testing.T) {
	owner := types.Address{0xaa}
	srv := newPriceServer(t, owner)

	rec := postPrice(srv, `{"caller":"`+owner.String()+`","price":"1050000000000000000"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/treasury/price", nil)
	got := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(got, req)
	require.Equal(t, http.StatusOK, got.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(got.Body).Decode(&resp))
	require.Equal(t, "1050000000000000000", resp["price"])
}

func TestSetPriceRejectsNonOwner(t *testing.T) {
	owner := types.Address{0xaa}
	srv := newPriceServer(t, owner)

	stranger := types.Address{0xbb}
	rec := postPrice(srv, `{"caller":"`+stranger.String()+`","price":"900000000000000000"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSetPriceRejectsMalformedRequests(t *testing.T) {
	owner := types.Address{0xaa}
	srv := newPriceServer(t, owner)

	for _, body := range []string{
		`{"caller":"nonsense","price":"1"}`,
		`{"caller":"` + owner.String() + `","price":"1.05"}`,
		`{"caller":"` + owner.String() + `","price":"-1"}`,
		`not json`,
	} {
		rec := postPrice(srv, body)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
}

func TestSetPriceRequiresWritableOracle(t *testing.T) {
	srv := NewServer(Config{ListenAddress: "127.0.0.1:0", Oracle: staticOracle{price: big.NewInt(1e18)}, Burst: 100})
	rec := postPrice(srv, `{"caller":"`+types.Address{0xaa}.String()+`","price":"1"}`)
	require.Equal(t, http.StatusNotImplemented, rec.Code)
}
