package discover

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/snikitin/bookcrawler/internal/crawl"
)

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string][]byte
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) Bytes(_ context.Context, url string, _ ...crawl.FetchOption) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("fetch %s failed after 1 attempts: http 404", url)
	}
	return body, nil
}

func (f *fakeFetcher) Text(ctx context.Context, url string, opts ...crawl.FetchOption) (string, error) {
	b, err := f.Bytes(ctx, url, opts...)
	return string(b), err
}

func (f *fakeFetcher) fetched(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == url {
			return true
		}
	}
	return false
}

func collect(t *testing.T, ch <-chan string) []string {
	t.Helper()
	var out []string
	for u := range ch {
		out = append(out, u)
	}
	return out
}

func gzipped(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestIsBookURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.litres.ru/book/ivan-petrov/roman-12345/", true},
		{"https://www.litres.ru/audiobook/anna/skazka-678/", true},
		{"https://www.litres.com/book/some-title/", true},
		{"https://www.litres.ru/author/ivan-petrov/", false},
		{"https://www.litres.ru/genre/detektivy/", false},
		{"https://example.com/book/whatever/", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := IsBookURL(tt.url); got != tt.want {
				t.Fatalf("IsBookURL(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestSitemapsFromRobots(t *testing.T) {
	f := &fakeFetcher{pages: map[string][]byte{
		"https://www.litres.ru/robots.txt": []byte(`User-agent: *
Disallow: /cart

Sitemap: https://www.litres.ru/sitemap/b.xml
Sitemap: https://www.litres.ru/sitemap/a.xml
Sitemap: https://www.litres.ru/sitemap/b.xml
`),
	}}
	w := NewSitemapWalker(f, "https://www.litres.ru/", zap.NewNop())

	sitemaps, err := w.Sitemaps(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://www.litres.ru/sitemap/a.xml",
		"https://www.litres.ru/sitemap/b.xml",
	}, sitemaps)
}

func TestSitemapStreamExpandsNestedAndGzip(t *testing.T) {
	index := `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://www.litres.ru/sitemap/books1.xml</loc></sitemap>
  <sitemap><loc>https://www.litres.ru/sitemap/books2.xml.gz</loc></sitemap>
</sitemapindex>`
	books1 := `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://www.litres.ru/book/ivan/roman-1/</loc></url>
  <url><loc>https://www.litres.ru/author/ivan/</loc></url>
</urlset>`
	books2 := `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://www.litres.ru/audiobook/anna/skazka-2/</loc></url>
  <url><loc>https://www.litres.ru/book/ivan/roman-1/</loc></url>
</urlset>`

	f := &fakeFetcher{pages: map[string][]byte{
		"https://www.litres.ru/sitemap/index.xml":     []byte(index),
		"https://www.litres.ru/sitemap/books1.xml":    []byte(books1),
		"https://www.litres.ru/sitemap/books2.xml.gz": gzipped(t, books2),
	}}
	w := NewSitemapWalker(f, "https://www.litres.ru/", zap.NewNop())

	urls := collect(t, w.Stream(context.Background(),
		[]string{"https://www.litres.ru/sitemap/index.xml"}))

	require.Equal(t, []string{
		"https://www.litres.ru/book/ivan/roman-1/",
		"https://www.litres.ru/audiobook/anna/skazka-2/",
	}, urls)
}

func TestSitemapStreamSkipsBrokenChild(t *testing.T) {
	index := `<sitemapindex>
  <sitemap><loc>https://www.litres.ru/sitemap/broken.xml</loc></sitemap>
  <sitemap><loc>https://www.litres.ru/sitemap/good.xml</loc></sitemap>
</sitemapindex>`
	good := `<urlset>
  <url><loc>https://www.litres.ru/book/ok/kniga-9/</loc></url>
</urlset>`

	f := &fakeFetcher{
		pages: map[string][]byte{
			"https://www.litres.ru/sitemap/index.xml": []byte(index),
			"https://www.litres.ru/sitemap/good.xml":  []byte(good),
		},
		errs: map[string]error{
			"https://www.litres.ru/sitemap/broken.xml": fmt.Errorf("http 503"),
		},
	}
	w := NewSitemapWalker(f, "https://www.litres.ru/", zap.NewNop())

	urls := collect(t, w.Stream(context.Background(),
		[]string{"https://www.litres.ru/sitemap/index.xml"}))
	require.Equal(t, []string{"https://www.litres.ru/book/ok/kniga-9/"}, urls)
}

func TestCatalogStreamPagesUntilNoNewLinks(t *testing.T) {
	genresIndex := `<html><body>
		<a href="/genre/detektivy/">Детективы</a>
		<a href="/genre/detektivy/">Детективы (повтор)</a>
		<a href="/author/someone/">Автор</a>
	</body></html>`
	page1 := `<html><body>
		<a href="/book/ivan/roman-1/?lfrom=123">Роман</a>
		<a href="/audiobook/anna/skazka-2/">Сказка</a>
		<a href="/genre/detektivy/podzhanr/">Поджанр</a>
	</body></html>`
	// Page 2 repeats page 1, so nothing new and pagination stops.
	f := &fakeFetcher{pages: map[string][]byte{
		"https://www.litres.ru/pages/new_genres/":       []byte(genresIndex),
		"https://www.litres.ru/genre/detektivy/":        []byte(page1),
		"https://www.litres.ru/genre/detektivy/?page=2": []byte(page1),
		"https://www.litres.ru/genre/detektivy/?page=3": []byte(page1),
	}}
	w := NewCatalogWalker(f, "https://www.litres.ru/", 50, zap.NewNop())

	urls := collect(t, w.Stream(context.Background()))
	require.Equal(t, []string{
		"https://www.litres.ru/book/ivan/roman-1/",
		"https://www.litres.ru/audiobook/anna/skazka-2/",
	}, urls)
	require.False(t, f.fetched("https://www.litres.ru/genre/detektivy/?page=3"))
}

func TestCatalogStreamHonorsPageCap(t *testing.T) {
	genresIndex := `<a href="/genre/g/">Жанр</a>`
	pageFor := func(n int) []byte {
		return []byte(fmt.Sprintf(`<a href="/book/a/kniga-%d/">Книга</a>`, n))
	}
	f := &fakeFetcher{pages: map[string][]byte{
		"https://www.litres.ru/pages/new_genres/": []byte(genresIndex),
		"https://www.litres.ru/genre/g/":          pageFor(1),
		"https://www.litres.ru/genre/g/?page=2":   pageFor(2),
		"https://www.litres.ru/genre/g/?page=3":   pageFor(3),
	}}
	w := NewCatalogWalker(f, "https://www.litres.ru/", 2, zap.NewNop())

	urls := collect(t, w.Stream(context.Background()))
	require.Len(t, urls, 2)
	require.False(t, f.fetched("https://www.litres.ru/genre/g/?page=3"))
}

func TestDiscoveryFallsBackToCatalog(t *testing.T) {
	f := &fakeFetcher{pages: map[string][]byte{
		"https://www.litres.ru/robots.txt":        []byte("User-agent: *\nDisallow:\n"),
		"https://www.litres.ru/pages/new_genres/": []byte(`<a href="/genre/g/">Жанр</a>`),
		"https://www.litres.ru/genre/g/":          []byte(`<a href="/book/a/kniga-1/">Книга</a>`),
	}}
	cfg := crawl.Config{BaseURL: "https://www.litres.ru/", MaxPagesPerGenre: 5}
	d := New(f, cfg, zap.NewNop())

	ch, err := d.Stream(context.Background(), crawl.MethodSitemap)
	require.NoError(t, err)
	urls := collect(t, ch)
	require.Equal(t, []string{"https://www.litres.ru/book/a/kniga-1/"}, urls)
	require.True(t, f.fetched("https://www.litres.ru/robots.txt"))
}

func TestDiscoveryUnknownMethod(t *testing.T) {
	d := New(&fakeFetcher{}, crawl.Config{BaseURL: "https://www.litres.ru/"}, zap.NewNop())
	_, err := d.Stream(context.Background(), "rss")
	require.Error(t, err)
}
