package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"chessmaster/internal/logging"
	"chessmaster/internal/types"
)

// pdfPageLimit bounds text extraction to the first pages of a document.
const pdfPageLimit = "10"

const pdfExcerptLen = 500

var errNoPDFToText = errors.New("pdftotext not found in PATH")

// fromPDF saves the document under the PDF directory and extracts its
// text. When pdftotext is unavailable the item carries a short placeholder
// pointing at the saved file.
func (f *Fetcher) fromPDF(ctx context.Context, topic, url, id string, body []byte) (*types.ContentItem, error) {
	if !bytes.HasPrefix(body, []byte("%PDF")) {
		return nil, types.NewFetchError("pdf", url, types.ReasonParse, errors.New("missing PDF header"))
	}
	path := filepath.Join(f.pdfsDir, id+".pdf")
	if err := writeFile(path, body); err != nil {
		return nil, types.NewFetchError("pdf", url, types.ReasonUnsupported, err)
	}

	text, err := f.pdfToText(ctx, path)
	if err != nil {
		logging.FetcherDebug("pdf text for %s: %v", url, err)
		text = fmt.Sprintf("PDF document about %s, saved at %s.", topic, path)
	}
	text = limitText(text, f.cfg.MaxContentLength)

	var excerpts []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.Join(strings.Fields(p), " ")
		if len(p) >= minExcerptLen && len(p) <= maxExcerptLen {
			excerpts = append(excerpts, p)
		}
		if len(excerpts) >= f.maxExcerpts() {
			break
		}
	}
	if len(excerpts) == 0 {
		excerpts = []string{limitText(strings.Join(strings.Fields(text), " "), pdfExcerptLen)}
	}

	return &types.ContentItem{
		Title:    "Chess PDF: " + topic,
		Text:     text,
		Excerpts: excerpts,
		Kind:     types.SourcePDF,
	}, nil
}

// runPDFToText shells out to poppler's pdftotext.
func (f *Fetcher) runPDFToText(ctx context.Context, pdfPath string) (string, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return "", errNoPDFToText
	}

	callCtx, cancel := context.WithTimeout(ctx, f.pdfTimeout)
	defer cancel()

	tmpDir, err := os.MkdirTemp("", "chessmaster_pdftotext_*")
	if err != nil {
		return "", fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outPath := filepath.Join(tmpDir, "out.txt")
	cmd := exec.CommandContext(callCtx, "pdftotext", "-enc", "UTF-8", "-q", "-l", pdfPageLimit, pdfPath, outPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if s := strings.TrimSpace(stderr.String()); s != "" {
			return "", fmt.Errorf("pdftotext: %w; stderr=%s", err, s)
		}
		return "", fmt.Errorf("pdftotext: %w", err)
	}

	b, err := os.ReadFile(outPath)
	if err != nil {
		return "", fmt.Errorf("read pdftotext output: %w", err)
	}
	txt := strings.TrimSpace(string(b))
	if txt == "" {
		return "", errors.New("pdftotext produced empty output")
	}
	return txt, nil
}
