// Package requester implements the credentialed API requester: it resolves
// a profile token to a brokerage environment, signs a single HTTP request
// with the profile's key pair, and pretty-prints the JSON response.
package requester

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"snowbanker/internal/api"
	"snowbanker/internal/logger"
)

// Error taxonomy. Usage errors show the usage text and exit cleanly; config
// errors (missing key files) are fatal and must prevent any network call;
// format errors mean the response body was not JSON.
var (
	ErrUsage          = errors.New("usage")
	ErrConfig         = errors.New("config")
	ErrResponseFormat = errors.New("response is not valid JSON")
)

const (
	defaultEndpoint = "/v2/account"
	defaultMethod   = http.MethodGet
)

// Usage returns the CLI usage text.
func Usage() string {
	return strings.Join([]string{
		"Usage: requester API_TYPE [ENDPOINT] [METHOD] [DATA]",
		"  API_TYPE   paper|p|live|l",
		"  ENDPOINT   API endpoint path (default: " + defaultEndpoint + ")",
		"  METHOD     HTTP method (default: " + defaultMethod + ")",
		"  DATA       request body",
	}, "\n")
}

// Options configures a run. The zero value uses real transport and stdout.
type Options struct {
	Transport http.RoundTripper
	Out       io.Writer
}

// Run executes one requester invocation with the given positional arguments.
// Exactly one HTTP attempt is made; transient staging files are removed on
// every exit path.
func Run(ctx context.Context, args []string, opts Options) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	if len(args) < 1 {
		return fmt.Errorf("%w: missing API_TYPE", ErrUsage)
	}
	profile, ok := api.ResolveProfile(args[0])
	if !ok {
		return fmt.Errorf("%w: unrecognized API_TYPE %q", ErrUsage, args[0])
	}

	endpoint := defaultEndpoint
	if len(args) > 1 && args[1] != "" {
		endpoint = args[1]
	}
	method := defaultMethod
	if len(args) > 2 && args[2] != "" {
		method = strings.ToUpper(args[2])
	}
	data := ""
	if len(args) > 3 {
		data = args[3]
	}

	creds, err := profile.LoadCredentials()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}

	var clientOpts []api.ClientOption
	clientOpts = append(clientOpts,
		api.WithBaseURL(profile.BaseURL),
		api.WithHeader(api.HeaderKeyID, creds.KeyID),
		api.WithHeader(api.HeaderKeySecret, creds.KeySecret))
	if opts.Transport != nil {
		clientOpts = append(clientOpts, api.WithTransport(opts.Transport))
	}
	client := api.NewClient(clientOpts...)

	req := api.NewRequest(method, endpoint).WithContext(ctx)
	if data != "" {
		body, cleanup, err := stageBody(data)
		if err != nil {
			return err
		}
		defer cleanup()
		req.WithRawBody(body)
	}

	logger.Debug(ctx, "Issuing request",
		"profile", profile.Name, "method", method, "endpoint", endpoint)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	return renderResponse(out, resp.Body)
}

// stageBody writes the request body to a transient on-disk staging file and
// reads it back for transmission. The returned cleanup removes the file and
// must run on every exit path.
func stageBody(data string) ([]byte, func(), error) {
	f, err := os.CreateTemp("", "requester-body-*")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create body staging file: %w", err)
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }

	if _, err := f.WriteString(data); err != nil {
		f.Close()
		cleanup()
		return nil, nil, fmt.Errorf("failed to write body staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return nil, nil, err
	}

	body, err := os.ReadFile(path)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return body, cleanup, nil
}

// renderResponse captures the raw response to a transient file, then parses
// and pretty-prints it as indented JSON. A body that is not JSON fails
// loudly. The capture file is removed on every exit path.
func renderResponse(out io.Writer, body []byte) error {
	f, err := os.CreateTemp("", "requester-response-*")
	if err != nil {
		return fmt.Errorf("failed to create response capture file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(body); err != nil {
		f.Close()
		return fmt.Errorf("failed to write response capture file: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	captured, err := os.ReadFile(f.Name())
	if err != nil {
		return err
	}

	var parsed any
	if err := json.Unmarshal(captured, &parsed); err != nil {
		return fmt.Errorf("%w: %v", ErrResponseFormat, err)
	}
	pretty, err := json.MarshalIndent(parsed, "", "    ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(pretty))
	return err
}
