package codec

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"github.com/netcored/netcore/api"
)

const (
	httpMaxHeaderBytes = 16 << 10
	httpLRUEntries     = 512
	httpLRUKeyBytes    = 512
)

var httpValidMethods = map[string]bool{
	"GET": true, "POST": true, "OPTIONS": true, "HEAD": true,
	"DELETE": true, "PUT": true, "PATCH": true,
}

// HTTP implements the HTTP/1.x codec: request-line and Content-Length
// based framing, with an LRU cache memoizing the parsed frame length for
// repeated prefixes.
type HTTP struct {
	cache *lru.Cache
}

func NewHTTP() *HTTP {
	c, _ := lru.New(httpLRUEntries)
	return &HTTP{cache: c}
}

func (h *HTTP) Input(buf []byte, conn api.Conn) int {
	headerEnd := bytes.Index(buf, []byte("\r\n\r\n"))
	if headerEnd < 0 {
		if len(buf) > httpMaxHeaderBytes {
			return rejectWith(conn, 413) // headers too large without terminator
		}
		return 0
	}
	if headerEnd > httpMaxHeaderBytes {
		return rejectWith(conn, 413)
	}

	key := cacheKey(buf[:headerEnd])
	if key != "" {
		if v, ok := h.cache.Get(key); ok {
			total := v.(int)
			if len(buf) < total {
				return 0
			}
			return total
		}
	}

	requestLine, headers := splitHeaderBlock(buf[:headerEnd])
	method, _, _, version := parseRequestLine(requestLine)
	if !httpValidMethods[method] {
		return rejectWith(conn, 400)
	}
	// Host is mandatory on HTTP/1.1; HTTP/1.0 has no such requirement.
	if version == "HTTP/1.1" && getHeader(headers, "Host") == "" {
		return rejectWith(conn, 400)
	}
	if getHeader(headers, "Transfer-Encoding") != "" {
		return rejectWith(conn, 400)
	}

	contentLength := 0
	if cl := getHeader(headers, "Content-Length"); cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			return rejectWith(conn, 400)
		}
		contentLength = n
	}

	total := headerEnd + 4 + contentLength
	if max := conn.MaxPackageSize(); max > 0 && total > max {
		return rejectWith(conn, 413)
	}
	if key != "" {
		h.cache.Add(key, total)
	}
	if len(buf) < total {
		return 0
	}
	return total
}

func (HTTP) Decode(buf []byte, conn api.Conn) (api.Message, error) {
	headerEnd := bytes.Index(buf, []byte("\r\n\r\n"))
	if headerEnd < 0 {
		return nil, fmt.Errorf("netcore/codec: http decode called on incomplete frame")
	}
	requestLine, headers := splitHeaderBlock(buf[:headerEnd])
	method, path, query, version := parseRequestLine(requestLine)
	return &Request{
		Method:    method,
		Path:      path,
		Query:     query,
		Version:   version,
		Headers:   headers,
		Body:      buf[headerEnd+4:],
		keepAlive: requestKeepAlive(headers, version),
	}, nil
}

func (HTTP) Encode(msg api.Message, conn api.Conn) ([]byte, error) {
	resp, ok := msg.(*Response)
	if !ok {
		return nil, fmt.Errorf("netcore/codec: http encode expects *codec.Response, got %T", msg)
	}
	return resp.Bytes(), nil
}

// Request is the api.Message an HTTP codec delivers to onMessage.
type Request struct {
	Method  string
	Path    string
	Query   string
	Version string
	Headers map[string]string
	Body    []byte

	keepAlive bool
}

// ShouldKeepAlive implements netconn's keepAliver duck-typed interface:
// the inbound Connection header drives whether the connection auto-closes
// once onMessage returns.
func (r *Request) ShouldKeepAlive() bool { return r.keepAlive }

// requestKeepAlive resolves the inbound Connection policy:
// HTTP/1.1 defaults to keep-alive unless the header says "close";
// HTTP/1.0 defaults to close unless the header says "keep-alive".
func requestKeepAlive(headers map[string]string, version string) bool {
	conn := strings.ToLower(strings.TrimSpace(getHeader(headers, "Connection")))
	switch conn {
	case "close":
		return false
	case "keep-alive":
		return true
	default:
		return version == "HTTP/1.1"
	}
}

// Response is what application code passes to Connection.Send when using
// the HTTP codec.
type Response struct {
	Status  int
	Reason  string
	Headers map[string]string
	Body    []byte
	// KeepAlive selects between "Connection: keep-alive" and
	// "Connection: close" framing.
	KeepAlive bool
}

func (r *Response) Bytes() []byte {
	reason := r.Reason
	if reason == "" {
		reason = statusText(r.Status)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", r.Status, reason)
	for k, v := range r.Headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
	}
	fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(r.Body))
	if r.KeepAlive {
		buf.WriteString("Connection: keep-alive\r\n")
	} else {
		buf.WriteString("Connection: close\r\n")
	}
	buf.WriteString("\r\n")
	buf.Write(r.Body)
	return buf.Bytes()
}

func statusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	case 413:
		return "Payload Too Large"
	case 500:
		return "Internal Server Error"
	default:
		return "Unknown"
	}
}

// rejectWith writes a status-only close response before the engine tears
// the connection down, so a misbehaving client sees 400/413 rather than a
// bare reset.
func rejectWith(conn api.Conn, status int) int {
	resp := &Response{Status: status}
	_ = conn.Send(resp.Bytes(), true)
	return -1
}

func cacheKey(header []byte) string {
	if len(header) == 0 || len(header) > httpLRUKeyBytes {
		return ""
	}
	return string(header)
}

func splitHeaderBlock(block []byte) (string, map[string]string) {
	lines := bytes.Split(block, []byte("\r\n"))
	headers := make(map[string]string, len(lines))
	if len(lines) == 0 {
		return "", headers
	}
	for _, line := range lines[1:] {
		idx := bytes.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		k := string(bytes.TrimSpace(line[:idx]))
		v := string(bytes.TrimSpace(line[idx+1:]))
		headers[k] = v
	}
	return string(lines[0]), headers
}

func parseRequestLine(line string) (method, path, query, version string) {
	var i, j int
	for i = 0; i < len(line) && line[i] != ' '; i++ {
	}
	method = line[:i]
	for j = i + 1; j < len(line) && line[j] != ' '; j++ {
	}
	target := ""
	if i < len(line) {
		target = line[i+1 : j]
	}
	if idx := strings.IndexByte(target, '?'); idx >= 0 {
		path, query = target[:idx], target[idx+1:]
	} else {
		path = target
	}
	if j < len(line) {
		version = line[j+1:]
	}
	return
}

func getHeader(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
