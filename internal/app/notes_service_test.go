package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jupyter-proxy-apps/internal/config"
	"jupyter-proxy-apps/internal/logging"
)

func newNotesFixture(t *testing.T) (*NotesService, string) {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{
		"Reference/20250101",
		"Reference/intro",
		"Math101/20250301",
		"Math101/20250302",
		"Math101/20991231",
		"Math101/123",
		"Math101/.git",
		"Research/papers",
		".hidden",
	} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}
	files := map[string]string{
		"Math101/20250301/lesson.md":         "# 第一課\n\n內容",
		"Math101/20250301/slides.PDF":        "",
		"Math101/20250301/page.html":         "<html><style>p{}</style><body><p>Hello</p></body></html>",
		"Math101/20250301/[無解答]lab.ipynb":    `{"nbformat":4,"metadata":{},"cells":[{"cell_type":"code","source":["x = 1\n","print(x)"],"outputs":[]}]}`,
		"Math101/20250301/answers.ipynb":     `{"nbformat":4,"cells":[]}`,
		"Math101/20250301/data.csv":          "a,b",
		"Math101/20250301/[無解答]broken.ipynb": `{"nbformat":`,
		"students.csv":                       "\ufeffusername,course\nalice,Math101\nbob,research\n",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(body), 0o644))
	}

	cfg := &config.Config{Notes: config.NotesConfig{
		Root:          root,
		StudentsCSV:   filepath.Join(root, "students.csv"),
		DefaultCourse: "Reference",
	}}
	svc := NewNotesService(cfg, logging.Discard())
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local) }
	return svc, root
}

func TestUserCourse(t *testing.T) {
	svc, root := newNotesFixture(t)

	assert.Equal(t, "Math101", svc.UserCourse("alice"))
	assert.Equal(t, "research", svc.UserCourse("bob"))
	assert.Equal(t, "Reference", svc.UserCourse("carol"))
	assert.Equal(t, "Reference", svc.UserCourse(""))

	require.NoError(t, os.WriteFile(filepath.Join(root, "students.csv"), []byte("name,class\nalice,Math101\n"), 0o644))
	assert.Equal(t, "Reference", svc.UserCourse("alice"))

	svc.studentsCSV = filepath.Join(root, "missing.csv")
	assert.Equal(t, "Reference", svc.UserCourse("alice"))
}

func TestAvailableCourses(t *testing.T) {
	svc, _ := newNotesFixture(t)

	courses, err := svc.AvailableCourses("all")
	require.NoError(t, err)
	assert.Equal(t, []string{"Math101", "Reference", "Research"}, courses)

	courses, err = svc.AvailableCourses("Math101")
	require.NoError(t, err)
	assert.Equal(t, []string{"Math101", "Reference"}, courses)

	courses, err = svc.AvailableCourses("RESEARCH")
	require.NoError(t, err)
	assert.Equal(t, []string{"Reference", "Research"}, courses)

	courses, err = svc.AvailableCourses("Physics")
	require.NoError(t, err)
	assert.Equal(t, []string{"Reference"}, courses)

	svc.root = filepath.Join(svc.root, "nope")
	courses, err = svc.AvailableCourses("all")
	require.NoError(t, err)
	assert.Empty(t, courses)
}

func TestDateFoldersHideFutureLessons(t *testing.T) {
	svc, _ := newNotesFixture(t)

	folders, err := svc.DateFolders("Math101")
	require.NoError(t, err)
	assert.Equal(t, []string{"20250301"}, folders)

	svc.now = func() time.Time { return time.Date(2025, 3, 2, 0, 0, 0, 0, time.Local) }
	folders, err = svc.DateFolders("Math101")
	require.NoError(t, err)
	assert.Equal(t, []string{"20250301", "20250302"}, folders)

	folders, err = svc.DateFolders("Reference")
	require.NoError(t, err)
	assert.Equal(t, []string{"20250101", "intro"}, folders)

	folders, err = svc.DateFolders("Nope")
	require.NoError(t, err)
	assert.Empty(t, folders)
}

func TestPreviewFiles(t *testing.T) {
	svc, _ := newNotesFixture(t)

	files, err := svc.PreviewFiles("Math101", "20250301")
	require.NoError(t, err)
	assert.Equal(t, []string{"[無解答]broken.ipynb", "[無解答]lab.ipynb", "lesson.md", "page.html", "slides.PDF"}, files)
}

func TestPathElementsAreValidated(t *testing.T) {
	svc, _ := newNotesFixture(t)

	for _, course := range []string{"", ".", "..", "../etc", "a/b", `a\b`, ".hidden"} {
		_, err := svc.DateFolders(course)
		assert.ErrorIs(t, err, ErrInvalidPath, course)
	}
	_, err := svc.PreviewFiles("Math101", "..")
	assert.ErrorIs(t, err, ErrInvalidPath)
	_, err = svc.View("Math101", "20250301", "../../students.csv")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.View("..", "20250301", "lesson.md")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestPreview(t *testing.T) {
	svc, _ := newNotesFixture(t)

	text, err := svc.Preview("Math101", "20250301", "lesson.md")
	require.NoError(t, err)
	assert.Equal(t, "# 第一課\n\n內容", text)

	text, err = svc.Preview("Math101", "20250301", "page.html")
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)

	text, err = svc.Preview("Math101", "20250301", "[無解答]lab.ipynb")
	require.NoError(t, err)
	assert.Equal(t, "x = 1\nprint(x)", text)

	_, err = svc.Preview("Math101", "20250301", "data.csv")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Preview("Math101", "20250301", "gone.md")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestView(t *testing.T) {
	svc, _ := newNotesFixture(t)

	doc, err := svc.View("Math101", "20250301", "lesson.md")
	require.NoError(t, err)
	assert.Equal(t, "text/html; charset=utf-8", doc.ContentType)
	assert.Contains(t, string(doc.Body), "<h1>第一課</h1>")

	doc, err = svc.View("Math101", "20250301", "slides.PDF")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", doc.ContentType)

	doc, err = svc.View("Math101", "20250301", "[無解答]lab.ipynb")
	require.NoError(t, err)
	assert.Contains(t, string(doc.Body), "print")

	doc, err = svc.View("Math101", "20250301", "[無解答]broken.ipynb")
	require.NoError(t, err)
	assert.Contains(t, string(doc.Body), "轉換錯誤")

	_, err = svc.View("Math101", "20250301", "answers.ipynb")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHTMLText(t *testing.T) {
	text, err := htmlText([]byte(`<p>A &amp; B</p><script>if (a < b) { s = "<p>x</p>"; }</script><STYLE>p > a {}</STYLE><p>C</p>`))
	require.NoError(t, err)
	assert.Equal(t, "A & BC", text)

	text, err = htmlText([]byte("<div>one</div>\n\n\n\n<div>two</div>"))
	require.NoError(t, err)
	assert.Equal(t, "one\n\ntwo", text)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "abc", excerpt("  abc \n", 5))
	assert.Equal(t, "講義…", excerpt("講義內容", 2))
}
