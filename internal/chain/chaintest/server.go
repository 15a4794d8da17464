package chaintest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/R3E-Network/ledger_client/internal/chain"
)

// NewServer serves l over JSON-RPC. The caller closes the server.
func NewServer(l *Ledger) *httptest.Server {
	return httptest.NewServer(Handler(l))
}

// Handler returns the JSON-RPC handler for l.
func Handler(l *Ledger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
			ID     uint64            `json:"id"`
		}
		resp := chain.RPCResponse{JSONRPC: "2.0"}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			resp.Error = &chain.RPCError{Code: -32700, Message: "Parse error"}
		} else {
			resp.ID = req.ID
			result, err := dispatch(r.Context(), l, req.Method, req.Params)
			if err != nil {
				var rpcErr *chain.RPCError
				var te *chain.TransportError
				switch {
				case errors.As(err, &rpcErr):
					resp.Error = rpcErr
				case errors.As(err, &te):
					http.Error(w, te.Error(), http.StatusServiceUnavailable)
					return
				default:
					resp.Error = &chain.RPCError{Code: -32602, Message: err.Error()}
				}
			} else {
				resp.Result, _ = json.Marshal(result)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
}

type withContext struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value interface{} `json:"value"`
}

func (l *Ledger) wrap(v interface{}) withContext {
	out := withContext{Value: v}
	out.Context.Slot = l.Slot()
	return out
}

func dispatch(ctx context.Context, l *Ledger, method string, params []json.RawMessage) (interface{}, error) {
	param := func(i int, dst interface{}) error {
		if i >= len(params) {
			return fmt.Errorf("missing param %d", i)
		}
		return json.Unmarshal(params[i], dst)
	}
	var opts struct {
		Commitment chain.Commitment `json:"commitment"`
	}

	switch method {
	case "getLatestBlockhash":
		bh, err := l.GetLatestBlockhash(ctx, "")
		if err != nil {
			return nil, err
		}
		return l.wrap(bh), nil

	case "getAccountInfo":
		var addr chain.Address
		if err := param(0, &addr); err != nil {
			return nil, err
		}
		info, err := l.GetAccountInfo(ctx, addr, "")
		if err != nil {
			return nil, err
		}
		if info == nil {
			return l.wrap(nil), nil
		}
		return l.wrap(info), nil

	case "getSlot":
		if len(params) > 0 {
			_ = param(0, &opts)
		}
		return l.GetSlot(ctx, opts.Commitment)

	case "getBalance":
		var addr chain.Address
		if err := param(0, &addr); err != nil {
			return nil, err
		}
		bal, err := l.GetBalance(ctx, addr, "")
		if err != nil {
			return nil, err
		}
		return l.wrap(bal), nil

	case "getVersion":
		return l.GetVersion(ctx)

	case "requestAirdrop":
		var addr chain.Address
		var lamports uint64
		if err := param(0, &addr); err != nil {
			return nil, err
		}
		if err := param(1, &lamports); err != nil {
			return nil, err
		}
		return l.RequestAirdrop(ctx, addr, lamports, "")

	case "sendTransaction":
		var encoded string
		var send chain.SendOptions
		if err := param(0, &encoded); err != nil {
			return nil, err
		}
		if len(params) > 1 {
			if err := param(1, &send); err != nil {
				return nil, err
			}
		}
		if send.Encoding != "" && send.Encoding != "base64" {
			return nil, fmt.Errorf("unsupported encoding %q", send.Encoding)
		}
		wire, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, err
		}
		return l.SendTransaction(ctx, wire, send)

	case "getSignatureStatuses":
		var keys []chain.Signature
		if err := param(0, &keys); err != nil {
			return nil, err
		}
		statuses, err := l.GetSignatureStatuses(ctx, keys...)
		if err != nil {
			return nil, err
		}
		return l.wrap(statuses), nil

	default:
		return nil, &chain.RPCError{Code: -32601, Message: "Method not found"}
	}
}
