package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"pamana/notes/internal/model"
)

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// httpRenewer posts the refresh credential to the backend renewal endpoint.
// It bypasses Send so a 401 from the renewal itself can never recurse.
type httpRenewer struct {
	gw *Gateway
}

func (r *httpRenewer) Renew(ctx context.Context, refresh string) (model.Credential, error) {
	var pair tokenPair
	if err := r.gw.postUnauthenticated(ctx, RefreshPath, map[string]string{"refresh": refresh}, &pair); err != nil {
		return model.Credential{}, err
	}
	return model.Credential{Access: pair.Access, Refresh: pair.Refresh}, nil
}

// Login exchanges an identifier and secret for a credential pair and stores
// both halves in one write.
func (g *Gateway) Login(ctx context.Context, schoolID, password string) error {
	if err := model.RequireText("school_id", schoolID); err != nil {
		return err
	}
	if err := model.RequireText("password", password); err != nil {
		return err
	}
	var pair tokenPair
	body := map[string]string{"school_id": schoolID, "password": password}
	if err := g.postUnauthenticated(ctx, TokenPath, body, &pair); err != nil {
		return err
	}
	if pair.Access == "" || pair.Refresh == "" {
		return errors.New("credential exchange returned an incomplete pair")
	}
	// Drop any previous pair so a stale refresh never survives a new login.
	if err := g.store.Clear(ctx); err != nil {
		return errors.Wrap(err, "clear credentials")
	}
	if err := g.store.Set(ctx, model.Credential{Access: pair.Access, Refresh: pair.Refresh}); err != nil {
		return errors.Wrap(err, "store credentials")
	}
	g.logger.Info("logged in", "school_id", schoolID)
	return nil
}

func (g *Gateway) Logout(ctx context.Context) error {
	return errors.Wrap(g.store.Clear(ctx), "clear credentials")
}

// Renew forces one renewal with the stored refresh credential. Failure
// clears the store like any other failed renewal.
func (g *Gateway) Renew(ctx context.Context) error {
	cred, _, err := g.store.Get(ctx)
	if err != nil {
		return errors.Wrap(err, "load credentials")
	}
	_, err = g.renew(ctx, cred, false)
	return err
}

func (g *Gateway) postUnauthenticated(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.metrics.observeRequest(http.MethodPost, 0)
		return errors.Wrapf(err, "POST %s", path)
	}
	defer resp.Body.Close()
	g.metrics.observeRequest(http.MethodPost, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, data)
	}
	return (&Response{Status: resp.StatusCode, Body: data}).Decode(out)
}
