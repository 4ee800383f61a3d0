package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

const (
	maxRedirects = 5
	maxBodyDrain = 64 << 10
)

type HTTPChecker struct {
	Client *http.Client
	Accept StatusRange
	// DiagnoseDNS annotates DNS failures with the resolver classification.
	DiagnoseDNS bool
	UserAgent   string
}

// NewHTTPChecker builds a checker whose client timeout is a hard upper bound;
// callers narrow it per check through ctx.
func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{
		Client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		Accept:    DefaultAccept,
		UserAgent: "uptimewatch/1.0",
	}
}

func (h *HTTPChecker) Check(ctx context.Context, target string) Result {
	start := time.Now()

	// HEAD first; some servers refuse it, so retry the same probe as GET.
	resp, err := h.do(ctx, http.MethodHead, target)
	if err == nil && (resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented) {
		resp.Body.Close()
		resp, err = h.do(ctx, http.MethodGet, target)
	}
	elapsed := time.Since(start)
	if err != nil {
		return Result{Duration: elapsed, Error: h.describe(ctx, target, err, elapsed)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyDrain))

	out := Result{StatusCode: resp.StatusCode, Duration: elapsed}
	if h.Accept.Contains(resp.StatusCode) {
		out.Success = true
		return out
	}
	out.Error = fmt.Sprintf("http status %s outside accepted range %s", resp.Status, h.Accept)
	return out
}

func (h *HTTPChecker) do(ctx context.Context, method, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	if h.UserAgent != "" {
		req.Header.Set("User-Agent", h.UserAgent)
	}
	return h.Client.Do(req)
}

func (h *HTTPChecker) describe(ctx context.Context, target string, err error, elapsed time.Duration) string {
	var (
		dnsErr     *net.DNSError
		certErr    *tls.CertificateVerificationError
		authErr    x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		invalidErr x509.CertificateInvalidError
		recordErr  tls.RecordHeaderError
		netErr     net.Error
	)
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("timeout: no response after %dms", elapsed.Milliseconds())
	case errors.As(err, &dnsErr):
		msg := fmt.Sprintf("dns: %s: %s", dnsErr.Name, dnsErr.Err)
		if h.DiagnoseDNS {
			dctx, cancel := context.WithTimeout(context.Background(), dnsTimeout)
			defer cancel()
			msg += " (class=" + CheckDNS(dctx, extractHost(target)).Class + ")"
		}
		return msg
	case errors.Is(err, syscall.ECONNREFUSED):
		return "connection refused"
	case errors.Is(err, syscall.ECONNRESET):
		return "connection reset by peer"
	case errors.As(err, &certErr), errors.As(err, &authErr), errors.As(err, &hostErr),
		errors.As(err, &invalidErr), errors.As(err, &recordErr):
		return "tls: " + err.Error()
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Sprintf("timeout: no response after %dms", elapsed.Milliseconds())
	default:
		return "request failed: " + err.Error()
	}
}
