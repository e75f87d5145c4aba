package docintel

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/afiqzahari/mida-quota/internal/core/domain"
	"github.com/afiqzahari/mida-quota/internal/infrastructure/resilience"
)

// Client talks to the document-understanding provider that turns a scanned
// PDF into text spans, detected tables and handwritten-style flags. The
// provider is the only external dependency of the extraction pipeline.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) { c.executor = executor }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// analyzeResponse mirrors the provider's layout result. Only the fields the
// pipeline consumes are decoded.
type analyzeResponse struct {
	Content string `json:"content"`
	Pages   []struct {
		PageNumber int            `json:"pageNumber"`
		Spans      []responseSpan `json:"spans"`
	} `json:"pages"`
	Tables []struct {
		PageNumber int `json:"pageNumber"`
		Cells      []struct {
			RowIndex    int    `json:"rowIndex"`
			ColumnIndex int    `json:"columnIndex"`
			Content     string `json:"content"`
		} `json:"cells"`
	} `json:"tables"`
	Styles []struct {
		IsHandwritten bool           `json:"isHandwritten"`
		Spans         []responseSpan `json:"spans"`
	} `json:"styles"`
}

type responseSpan struct {
	Offset int `json:"offset"`
	Length int `json:"length"`
}

func (c *Client) Analyze(ctx context.Context, pdf []byte) (*domain.RawDocument, error) {
	var response analyzeResponse

	call := func(callCtx context.Context) error {
		return c.postLayout(callCtx, pdf, &response)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "docintel.analyze", call, classifyProviderError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapTemporaryIfNeeded("analyze document", err)
	}

	doc := toRawDocument(response)
	if doc.Content == "" && len(doc.Tables) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "analyze document",
			errors.New("provider returned an empty layout result"))
	}
	return doc, nil
}

func toRawDocument(response analyzeResponse) *domain.RawDocument {
	doc := &domain.RawDocument{Content: response.Content}

	for _, page := range response.Pages {
		p := domain.Page{Number: page.PageNumber}
		for _, span := range page.Spans {
			p.Spans = append(p.Spans, domain.Span{Offset: span.Offset, Length: span.Length})
		}
		doc.Pages = append(doc.Pages, p)
	}

	for _, table := range response.Tables {
		t := domain.DetectedTable{PageNumber: table.PageNumber}
		for _, cell := range table.Cells {
			t.Cells = append(t.Cells, domain.TableCell{
				Row:     cell.RowIndex,
				Col:     cell.ColumnIndex,
				Content: cell.Content,
			})
		}
		doc.Tables = append(doc.Tables, t)
	}

	for _, style := range response.Styles {
		if !style.IsHandwritten {
			continue
		}
		for _, span := range style.Spans {
			doc.HandwrittenSpans = append(doc.HandwrittenSpans, domain.Span{
				Offset: span.Offset,
				Length: span.Length,
			})
		}
	}
	return doc
}
