package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"invoicekit/internal/logger"
)

const (
	// DefaultBaseURL is the ARES REST API root.
	DefaultBaseURL = "https://ares.gov.cz/ekonomicke-subjekty-v-be/rest"

	DefaultTimeout = 12 * time.Second

	userAgent       = "invoicekit/1.0"
	maxResponseSize = 1 << 20
)

// ARESClient queries the ARES economic subjects endpoint.
type ARESClient struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewARESClient creates a client. An empty baseURL selects DefaultBaseURL
// and a non-positive timeout DefaultTimeout.
func NewARESClient(baseURL string, timeout time.Duration) *ARESClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ARESClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        logger.WithComponent("registry"),
	}
}

var _ Registry = (*ARESClient)(nil)

type aresSeat struct {
	TextAddress   string      `json:"textovaAdresa"`
	Street        string      `json:"nazevUlice"`
	HouseNumber   json.Number `json:"cisloDomovni"`
	OrientNumber  json.Number `json:"cisloOrientacni"`
	PostalCode    json.Number `json:"psc"`
	PostalCodeTxt string      `json:"pscTxt"`
	Town          string      `json:"nazevObce"`
}

type aresSubject struct {
	BusinessName string    `json:"obchodniJmeno"`
	TaxID        string    `json:"dic"`
	Seat         *aresSeat `json:"sidlo"`
}

// The endpoint returns a single subject; search endpoints wrap a list.
type aresResponse struct {
	aresSubject
	Subjects []aresSubject `json:"ekonomickeSubjekty"`
	Items    []aresSubject `json:"items"`
}

// Lookup fetches the subject with the given IČO. An unknown subject or a
// non-2xx answer yields an empty Result and no error. Transport and decoding
// failures are returned.
func (c *ARESClient) Lookup(ctx context.Context, nationalID string) (Result, error) {
	const op = "registry.Lookup"

	ico := NormalizeID(nationalID)
	if ico == "" {
		return Result{}, nil
	}

	endpoint := c.baseURL + "/ekonomicke-subjekty/" + url.PathEscape(ico)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "cs,en;q=0.8")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("ico", ico).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("ARES response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode != http.StatusNotFound {
			c.log.Warn().
				Str("ico", ico).
				Int("status", resp.StatusCode).
				Msg("ARES lookup not successful, treating as not found")
		}
		return Result{}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Result{}, fmt.Errorf("%s: failed to read response: %w", op, err)
	}

	var decoded aresResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Result{}, fmt.Errorf("%s: failed to decode response: %w", op, err)
	}

	subject := decoded.aresSubject
	switch {
	case len(decoded.Subjects) > 0:
		subject = decoded.Subjects[0]
	case len(decoded.Items) > 0:
		subject = decoded.Items[0]
	}

	return subject.result(), nil
}

func (s aresSubject) result() Result {
	r := Result{
		Name:  strings.TrimSpace(s.BusinessName),
		TaxID: strings.TrimSpace(s.TaxID),
	}
	if s.Seat == nil {
		return r
	}

	if text := strings.TrimSpace(s.Seat.TextAddress); text != "" {
		r.Address, r.City = SplitAddress(text)
	}
	if r.Address != "" && r.City != "" {
		return r
	}

	// Compose from the structured fields.
	number := s.Seat.HouseNumber.String()
	if o := s.Seat.OrientNumber.String(); o != "" {
		number += "/" + o
	}
	if street := strings.TrimSpace(s.Seat.Street + " " + number); street != "" {
		r.Address = street
	}

	postal := s.Seat.PostalCodeTxt
	if postal == "" {
		postal = s.Seat.PostalCode.String()
	}
	if city := strings.TrimSpace(postal + " " + s.Seat.Town); city != "" {
		r.City = city
	}
	return r
}
