// Package hl7api exposes the HL7 parser over HTTP.
package hl7api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/hl7/pkg/hl7"
)

// Handler provides HTTP endpoints for parsing, querying and acknowledging
// HL7 messages.
type Handler struct {
	ack  *hl7.ACKOptions
	opts []hl7.Option
}

// NewHandler creates a handler. ack configures generated acknowledgments
// and may be nil; opts are passed to every parse.
func NewHandler(ack *hl7.ACKOptions, opts ...hl7.Option) *Handler {
	return &Handler{ack: ack, opts: opts}
}

// RegisterRoutes registers the HL7 endpoints on the provided route group.
//
//	POST /hl7v2/parse          - Parse a message, batch or file to JSON
//	POST /hl7v2/extract?key=   - Read one value (or all, with wildcards)
//	POST /hl7v2/ack?code=      - Build the acknowledgment for a message
//	POST /hl7v2/escape         - Escape text for a field value
//	POST /hl7v2/unescape       - Resolve escape sequences in text
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/hl7v2/parse", h.ParseMessage)
	g.POST("/hl7v2/extract", h.Extract)
	g.POST("/hl7v2/ack", h.CreateACK)
	g.POST("/hl7v2/escape", h.Escape)
	g.POST("/hl7v2/unescape", h.Unescape)
}

// ParseMessage handles POST /hl7v2/parse. The body may hold a single
// message, a batch or a file; the response carries its tree.
func (h *Handler) ParseMessage(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return requestError(c, err)
	}

	node, err := hl7.ParseHL7Bytes(body, h.opts...)
	if err != nil {
		return badRequest(c, "failed to parse HL7 message: "+err.Error())
	}

	result := map[string]interface{}{"tree": NewTree(node)}
	if msg, ok := node.(*hl7.Message); ok {
		controlID, _ := msg.Get("MSH.10")
		version, _ := msg.Get("MSH.12")
		result["controlId"] = controlID
		result["version"] = version
		if msh, err := msg.Segment("MSH"); err == nil {
			if f := msh.Field(9); f != nil {
				result["type"] = f.String()
			}
		}
	}
	return c.JSON(http.StatusOK, result)
}

// Extract handles POST /hl7v2/extract?key=PID.5.1. Keys with a segment or
// repetition wildcard return every matching value.
func (h *Handler) Extract(c echo.Context) error {
	key := c.QueryParam("key")
	if key == "" {
		return badRequest(c, "key query parameter is required")
	}
	acc, err := hl7.ParseKey(key)
	if err != nil {
		return badRequest(c, err.Error())
	}

	msg, err := h.parse(c)
	if err != nil {
		return requestError(c, err)
	}

	if acc.SegmentNum == hl7.Wildcard || acc.RepeatNum == hl7.Wildcard {
		values, err := msg.ExtractAll(acc)
		if err != nil {
			return extractError(c, err)
		}
		if values == nil {
			values = []string{}
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"key": acc.Key(), "values": values})
	}

	value, err := msg.Extract(acc)
	if err != nil {
		return extractError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"key": acc.Key(), "value": value})
}

// CreateACK handles POST /hl7v2/ack?code=AA and returns the acknowledgment
// as HL7 text.
func (h *Handler) CreateACK(c echo.Context) error {
	code := c.QueryParam("code")
	switch code {
	case "", hl7.AckAccept, hl7.AckError, hl7.AckReject:
	default:
		return badRequest(c, "code must be one of AA, AE, AR")
	}

	msg, err := h.parse(c)
	if err != nil {
		return requestError(c, err)
	}
	ack, err := msg.CreateACK(code, h.ack)
	if err != nil {
		return badRequest(c, "failed to create acknowledgment: "+err.Error())
	}
	return c.Blob(http.StatusOK, "text/plain", []byte(ack.String()))
}

// escapeRequest is the JSON body of the escape endpoints. Separators
// default to the standard "|^~\&" set.
type escapeRequest struct {
	Text               string            `json:"text"`
	FieldSeparator     string            `json:"fieldSeparator"`
	EncodingCharacters string            `json:"encodingCharacters"`
	Substitutions      map[string]string `json:"substitutions"`
}

func (r escapeRequest) delimiters() (hl7.Delimiters, error) {
	if r.FieldSeparator == "" && r.EncodingCharacters == "" {
		return hl7.DefaultDelimiters(), nil
	}
	sep, enc := r.FieldSeparator, r.EncodingCharacters
	if sep == "" {
		sep = string(rune(hl7.DefaultFieldSeparator))
	}
	if enc == "" {
		enc = hl7.DefaultDelimiters().EncodingCharacters()
	}
	return hl7.DetectDelimiters("MSH" + sep + enc + sep)
}

// Escape handles POST /hl7v2/escape.
func (h *Handler) Escape(c echo.Context) error {
	var req escapeRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}
	d, err := req.delimiters()
	if err != nil {
		return badRequest(c, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"result": hl7.Escape(d, req.Text, req.Substitutions)})
}

// diagnosticJSON is one problem found while unescaping.
type diagnosticJSON struct {
	Sequence string `json:"sequence"`
	Offset   int    `json:"offset"`
	Reason   string `json:"reason"`
}

// Unescape handles POST /hl7v2/unescape. Malformed sequences are listed in
// the response rather than failing the request.
func (h *Handler) Unescape(c echo.Context) error {
	var req escapeRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}
	d, err := req.delimiters()
	if err != nil {
		return badRequest(c, err.Error())
	}

	diagnostics := []diagnosticJSON{}
	sink := func(diag hl7.Diagnostic) {
		diagnostics = append(diagnostics, diagnosticJSON{Sequence: diag.Sequence, Offset: diag.Offset, Reason: diag.Reason})
	}
	result := hl7.Unescape(d, req.Text, req.Substitutions, sink)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"result":      result,
		"diagnostics": diagnostics,
	})
}

func (h *Handler) parse(c echo.Context) (*hl7.Message, error) {
	body, err := readBody(c)
	if err != nil {
		return nil, err
	}
	msg, err := hl7.ParseBytes(body, h.opts...)
	if err != nil {
		return nil, errors.New("failed to parse HL7 message: " + err.Error())
	}
	return msg, nil
}

func readBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request().Body)
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return nil, httpErr
	}
	if err != nil {
		return nil, errors.New("failed to read request body")
	}
	if len(body) == 0 {
		return nil, errors.New("request body is empty")
	}
	return body, nil
}

func extractError(c echo.Context, err error) error {
	if errors.Is(err, hl7.ErrSegmentNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	return badRequest(c, err.Error())
}

// requestError reports err as a 400 unless it already carries a status,
// such as the 413 from the body limit.
func requestError(c echo.Context, err error) error {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return badRequest(c, err.Error())
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}

// decodeJSONBody reads and decodes the JSON request body into the given target.
func decodeJSONBody(c echo.Context, target interface{}) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, target)
}
