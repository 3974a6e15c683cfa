package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/mihaimyh/gostorekit/pkg/storekit"
)

// ErrNoReceiptURL is returned by receipt operations when no ReceiptURL is configured.
var ErrNoReceiptURL = errors.New("gateway receipt URL is not configured")

const receiptFileMode = 0o600

type refreshResponse struct {
	Receipt string `json:"receipt"`
}

// ReadReceipt reads the cached receipt. A missing object is not an error.
func (c *Client) ReadReceipt(ctx context.Context) ([]byte, error) {
	if c.receiptURL == "" {
		return nil, ErrNoReceiptURL
	}
	exists, err := c.fs.Exists(ctx, c.receiptURL)
	if err != nil {
		return nil, fmt.Errorf("failed to stat receipt %s: %w", c.receiptURL, err)
	}
	if !exists {
		return nil, nil
	}
	data, err := c.fs.DownloadWithURL(ctx, c.receiptURL)
	if err != nil {
		return nil, fmt.Errorf("failed to read receipt %s: %w", c.receiptURL, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

// RefreshReceipt asks the gateway for a fresh receipt and stores it at ReceiptURL before
// calling done.
func (c *Client) RefreshReceipt(ctx context.Context, done func(error)) {
	go func() {
		done(c.refreshReceipt(ctx))
	}()
}

func (c *Client) refreshReceipt(ctx context.Context) error {
	if c.receiptURL == "" {
		return ErrNoReceiptURL
	}

	var out refreshResponse
	err := c.call(ctx, "receipt_refresh", c.timeout, func(req *resty.Request) (*resty.Response, error) {
		return req.SetResult(&out).Post("/v1/receipt/refresh")
	})
	if err != nil {
		return err
	}

	receipt, err := base64.StdEncoding.DecodeString(out.Receipt)
	if err != nil {
		return fmt.Errorf("gateway returned a malformed receipt: %w", err)
	}
	if len(receipt) == 0 {
		return storekit.ErrReceiptNotFound
	}
	if err := c.fs.Upload(ctx, c.receiptURL, receiptFileMode, bytes.NewReader(receipt)); err != nil {
		return fmt.Errorf("failed to store receipt %s: %w", c.receiptURL, err)
	}
	return nil
}
