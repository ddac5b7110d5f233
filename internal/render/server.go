package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Viewer serves the maps of one run folder over HTTP.
type Viewer struct {
	root       string
	httpServer *http.Server
	mu         sync.Mutex
	addr       string
}

// NewViewer creates a viewer for the run folder root.
func NewViewer(root string) *Viewer {
	return &Viewer{root: root}
}

// Addr returns the address the viewer is listening on (e.g., "localhost:PORT").
// Returns empty string if the viewer hasn't started yet.
func (v *Viewer) Addr() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.addr
}

// ListenAndServe starts the viewer on addr and blocks until ctx is
// cancelled. An empty addr lets the OS pick a free localhost port.
func (v *Viewer) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = "localhost:0"
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", v.handleIndex)
	mux.Handle("/files/", http.StripPrefix("/files/", http.FileServer(http.Dir(v.root))))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	v.mu.Lock()
	v.addr = ln.Addr().String()
	v.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	v.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		v.httpServer.Shutdown(shutdownCtx)
	}()

	err = v.httpServer.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// MapFile is one HTML map relative to the run root.
type MapFile struct {
	Name string
	Path string
}

// MapGroup is the maps of one folder.
type MapGroup struct {
	Name  string
	Files []MapFile
}

// Maps lists the HTML maps under root grouped by directory, the run root
// first and pairing folders after it in name order.
func Maps(root string) ([]MapGroup, error) {
	groups := map[string][]MapFile{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".html") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		dir := filepath.Dir(rel)
		groups[dir] = append(groups[dir], MapFile{Name: d.Name(), Path: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list maps in %s: %w", root, err)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i] == "." || names[j] == "." {
			return names[i] == "."
		}
		return names[i] < names[j]
	})
	out := make([]MapGroup, 0, len(names))
	for _, name := range names {
		label := name
		if name == "." {
			label = "run"
		}
		out = append(out, MapGroup{Name: label, Files: groups[name]})
	}
	return out, nil
}

func (v *Viewer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if _, err := os.Stat(v.root); err != nil {
		http.Error(w, "run folder not available", http.StatusNotFound)
		return
	}
	groups, err := Maps(v.root)
	if err != nil {
		http.Error(w, "list error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	src, err := templates.ReadFile("templates/index.html.tmpl")
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	tmpl, err := template.New("index").Parse(string(src))
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	data := struct {
		Title  string
		Groups []MapGroup
	}{filepath.Base(v.root), groups}
	if err := tmpl.Execute(&buf, data); err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
