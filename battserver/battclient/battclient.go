// Package battclient talks to a battery id daemon. Credentials for a daemon
// started with an API key can be passed as user info in the URL.
package battclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BertoldVdb/battid/battchip"
	"github.com/BertoldVdb/battid/battserver/api"
	"github.com/fxamacker/cbor/v2"
)

type BattClient struct {
	client http.Client
	url    string

	info api.Info
}

// StatusError is returned when the daemon answers with a non 200 status. Body
// holds the response, the refresh endpoint sends diagnostics along with its
// failure status.
type StatusError struct {
	Status     string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request error %s", e.Status)
}

func New(url string) (*BattClient, error) {
	c := &BattClient{
		client: http.Client{
			Timeout: 10 * time.Second,
		},

		url: strings.TrimSuffix(url, "/"),
	}

	infoRaw, err := c.doReq("GET", "info")
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(infoRaw, &c.info); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *BattClient) doReq(method string, endpoint string) ([]byte, error) {
	var rdr io.Reader
	if method == "POST" {
		rdr = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.url+"/"+endpoint, rdr)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8192))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != 200 {
		return nil, &StatusError{
			Status:     resp.Status,
			StatusCode: resp.StatusCode,
			Body:       body,
		}
	}

	return body, nil
}

// Info returns the chip description fetched when the client was created.
func (c *BattClient) Info() api.Info {
	return c.info
}

// Class returns the resistance class, 0 when the daemon could not determine
// it.
func (c *BattClient) Class() (api.ClassResponse, error) {
	var resp api.ClassResponse

	raw, err := c.doReq("GET", "class")
	if err != nil {
		return resp, err
	}

	return resp, json.Unmarshal(raw, &resp)
}

func (c *BattClient) Diagnostics() (battchip.Diagnostics, error) {
	var diag battchip.Diagnostics

	raw, err := c.doReq("GET", "diag.cbor")
	if err != nil {
		return diag, err
	}

	return diag, cbor.Unmarshal(raw, &diag)
}

// Image returns the raw image. The daemon refuses when it has no valid one.
func (c *BattClient) Image() (battchip.Image, error) {
	raw, err := c.doReq("GET", "image")
	if err != nil {
		return battchip.Image{}, err
	}

	return battchip.ImageFromBytes(raw)
}

// Refresh makes the daemon read the chip again. The diagnostics are returned
// even when the read failed.
func (c *BattClient) Refresh() (battchip.Diagnostics, error) {
	var diag battchip.Diagnostics

	raw, reqErr := c.doReq("POST", "refresh")
	if se, ok := reqErr.(*StatusError); ok {
		raw = se.Body
	} else if reqErr != nil {
		return diag, reqErr
	}

	if err := json.Unmarshal(raw, &diag); err != nil {
		if reqErr != nil {
			return diag, reqErr
		}
		return diag, err
	}

	return diag, reqErr
}

func (c *BattClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
