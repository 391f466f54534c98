package httpserver

import (
	"bytes"
	"embed"
	"html/template"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"lanshare/internal/listing"
	"lanshare/internal/transfer"
)

//go:embed templates/listing.html
var templatesFS embed.FS

func parsePage() (*template.Template, error) {
	return template.ParseFS(templatesFS, "templates/listing.html")
}

type crumb struct {
	Name string
	Href string
}

type pageEntry struct {
	Name  string
	Path  string // relative to the root, slash separated
	Href  string
	IsDir bool
	Size  string
	Icon  string
	Thumb string
}

type pageData struct {
	Dir       string
	Crumbs    []crumb
	Entries   []pageEntry
	MaxUpload string
}

func buildPage(dirRel string, entries []listing.Entry, maxUpload int64) pageData {
	d := pageData{
		Dir:       dirRel,
		Crumbs:    crumbs(dirRel),
		Entries:   make([]pageEntry, 0, len(entries)),
		MaxUpload: humanize.IBytes(uint64(maxUpload)),
	}
	for _, e := range entries {
		rel := joinRel(dirRel, e.Name)
		pe := pageEntry{
			Name:  e.Name,
			Path:  rel,
			Href:  hrefFor(rel),
			IsDir: e.IsDir,
		}
		if e.IsDir {
			pe.Href += "/"
			pe.Size = "Directory"
			pe.Icon = "📁"
		} else {
			var n uint64
			if e.Size != nil {
				n = *e.Size
			}
			pe.Size = humanize.IBytes(n)
			pe.Icon = iconFor(e.Name)
			if transfer.IsImage(e.Name) {
				pe.Thumb = pe.Href + "?thumb=96"
			}
		}
		d.Entries = append(d.Entries, pe)
	}
	return d
}

func renderPage(t *template.Template, d pageData) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func crumbs(dirRel string) []crumb {
	out := []crumb{{Name: "Home", Href: "/"}}
	if dirRel == "" {
		return out
	}
	cur := ""
	for _, part := range strings.Split(dirRel, "/") {
		cur = joinRel(cur, part)
		out = append(out, crumb{Name: part, Href: hrefFor(cur) + "/"})
	}
	return out
}

// hrefFor escapes each segment of rel and returns an absolute URL path.
func hrefFor(rel string) string {
	parts := strings.Split(rel, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return "/" + strings.Join(parts, "/")
}

func joinRel(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

var iconsByExt = map[string]string{}

func init() {
	groups := []struct {
		icon string
		exts []string
	}{
		{"🖼️", []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg", ".webp"}},
		{"🎥", []string{".mp4", ".avi", ".mov", ".wmv", ".flv", ".webm", ".mkv"}},
		{"🎵", []string{".mp3", ".wav", ".flac", ".aac", ".ogg", ".wma"}},
		{"📝", []string{".doc", ".docx"}},
		{"📊", []string{".xls", ".xlsx"}},
		{"📈", []string{".ppt", ".pptx"}},
		{"💻", []string{".py", ".js", ".html", ".css", ".php", ".java", ".cpp", ".c", ".h", ".go"}},
		{"📦", []string{".zip", ".rar", ".7z", ".tar", ".gz"}},
		{"⚙️", []string{".exe", ".msi", ".deb", ".rpm", ".dmg"}},
	}
	for _, g := range groups {
		for _, ext := range g.exts {
			iconsByExt[ext] = g.icon
		}
	}
}

func iconFor(name string) string {
	if icon, ok := iconsByExt[strings.ToLower(filepath.Ext(name))]; ok {
		return icon
	}
	return "📄"
}
