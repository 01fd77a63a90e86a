package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/wippyai/rb2js/errors"
)

// maxModuleSize bounds how much a remote source may return.
const maxModuleSize = 64 << 20

// Source yields the bytes of a parsing module.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	String() string
}

// FileSource reads a module from the local filesystem.
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindModuleUnavailable, err, "read "+s.Path)
	}
	return data, nil
}

func (s FileSource) String() string { return "file://" + s.Path }

// HTTPSource downloads a module. Only a 200 response counts as success.
type HTTPSource struct {
	Client *http.Client
	URL    string
}

func (s HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "build request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindModuleUnavailable, err, "GET "+s.URL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.PhaseLoad, errors.KindModuleUnavailable).
			Detail("GET %s: %s", s.URL, resp.Status).
			Value(resp.StatusCode).
			Build()
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxModuleSize+1))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindModuleUnavailable, err, "read body of "+s.URL)
	}
	if len(data) > maxModuleSize {
		return nil, errors.InvalidInput(errors.PhaseLoad, fmt.Sprintf("%s exceeds %d bytes", s.URL, maxModuleSize))
	}
	return data, nil
}

func (s HTTPSource) String() string { return s.URL }

// StaticSource serves module bytes already held in memory.
type StaticSource struct {
	Name string
	Data []byte
}

func (s StaticSource) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.Data) == 0 {
		return nil, errors.InvalidInput(errors.PhaseLoad, "empty module "+s.String())
	}
	return s.Data, nil
}

func (s StaticSource) String() string {
	if s.Name == "" {
		return "static"
	}
	return "static:" + s.Name
}

// ParseSource maps a location to a Source. http and https URLs are fetched
// remotely; file URLs and bare paths are read from disk.
func ParseSource(location string) (Source, error) {
	if location == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "empty module location")
	}
	if !strings.Contains(location, "://") {
		return FileSource{Path: location}, nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "parse module location")
	}
	switch u.Scheme {
	case "http", "https":
		return HTTPSource{URL: location}, nil
	case "file":
		path := u.Path
		if u.Host != "" && u.Host != "localhost" {
			path = u.Host + path
		}
		return FileSource{Path: path}, nil
	default:
		return nil, errors.Unsupported(errors.PhaseLoad, fmt.Sprintf("module source scheme %q", u.Scheme))
	}
}

// ParseSources maps every location with ParseSource.
func ParseSources(locations []string) ([]Source, error) {
	sources := make([]Source, 0, len(locations))
	for _, loc := range locations {
		src, err := ParseSource(loc)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}
