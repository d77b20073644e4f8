package certctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/edvin/certgen/internal/model"
)

// Generate submits the request in path and prints the resulting record.
func Generate(ctx context.Context, c *Client, out io.Writer, path string, regenerate bool) error {
	req, err := LoadRequest(path)
	if err != nil {
		return err
	}
	target := "/certificates/generate"
	if regenerate {
		target += "?regenerate=true"
	}
	resp, err := c.Post(ctx, target, req)
	if err != nil {
		return err
	}
	var rec model.CertificateRecord
	if err := resp.Decode(&rec); err != nil {
		return err
	}
	fmt.Fprintf(out, "Certificate %s: %s\n", rec.CertificateID, rec.Status)
	return printJSON(out, rec)
}

type BatchOptions struct {
	Sync bool
	// Wait polls an asynchronous batch until it finishes.
	Wait         bool
	PollInterval time.Duration
	Timeout      time.Duration
}

// Batch submits the batch file in path.
func Batch(ctx context.Context, c *Client, out io.Writer, path string, opts BatchOptions) error {
	items, err := LoadBatch(path)
	if err != nil {
		return err
	}
	async := !opts.Sync
	resp, err := c.Post(ctx, "/certificates/batch", map[string]any{
		"certificates":     items,
		"async_processing": async,
	})
	if err != nil {
		return err
	}
	var res model.BatchResult
	if err := resp.Decode(&res); err != nil {
		return err
	}
	fmt.Fprintf(out, "Batch %s: %s (%d certificates)\n", res.BatchID, res.Status, res.Total)

	if !async {
		for _, rec := range res.Certificates {
			printRecordLine(out, rec)
		}
		return nil
	}
	if !opts.Wait {
		return nil
	}

	progress, err := WaitBatch(ctx, c, res.BatchID, opts.PollInterval, opts.Timeout)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Batch %s: %s (%d completed, %d failed)\n", progress.BatchID, progress.Status, progress.Completed, progress.Failed)
	for _, id := range progress.FailedIDs {
		fmt.Fprintf(out, "  failed: %s\n", id)
	}
	return nil
}

// WaitBatch polls the batch until every item is finished or timeout passes.
func WaitBatch(ctx context.Context, c *Client, batchID string, interval, timeout time.Duration) (*model.BatchProgress, error) {
	if interval <= 0 {
		interval = time.Second
	}
	backoff := retry.NewConstant(interval)
	if timeout > 0 {
		backoff = retry.WithMaxDuration(timeout, backoff)
	}

	var progress model.BatchProgress
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := c.GetJSON(ctx, "/batch/"+url.PathEscape(batchID), &progress); err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
				return err
			}
			return retry.RetryableError(err)
		}
		if progress.Pending > 0 {
			return retry.RetryableError(fmt.Errorf("batch %s: %d pending", batchID, progress.Pending))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("wait for batch %s: %w", batchID, err)
	}
	return &progress, nil
}

func Status(ctx context.Context, c *Client, out io.Writer, id string) error {
	return show(ctx, c, out, "/certificates/"+url.PathEscape(id))
}

func BatchStatus(ctx context.Context, c *Client, out io.Writer, id string) error {
	return show(ctx, c, out, "/batch/"+url.PathEscape(id))
}

func Verify(ctx context.Context, c *Client, out io.Writer, id string) error {
	return show(ctx, c, out, "/certificates/"+url.PathEscape(id)+"/verify")
}

// Download writes the certificate PDF to dest, or to stdout when dest is "-".
func Download(ctx context.Context, c *Client, out io.Writer, id, dest string) error {
	resp, err := c.Get(ctx, "/certificates/"+url.PathEscape(id)+"/download")
	if err != nil {
		return err
	}
	if dest == "-" {
		_, err := out.Write(resp.Body)
		return err
	}
	if dest == "" {
		dest = id + ".pdf"
	}
	if err := os.WriteFile(dest, resp.Body, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	fmt.Fprintf(out, "Saved %s (%d bytes)\n", dest, len(resp.Body))
	return nil
}

func show(ctx context.Context, c *Client, out io.Writer, path string) error {
	var v json.RawMessage
	if err := c.GetJSON(ctx, path, &v); err != nil {
		return err
	}
	return printJSON(out, v)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRecordLine(out io.Writer, rec model.CertificateRecord) {
	line := fmt.Sprintf("  %-32s %s", rec.CertificateID, rec.Status)
	if rec.Error != nil {
		line += ": " + *rec.Error
	}
	fmt.Fprintln(out, line)
}
