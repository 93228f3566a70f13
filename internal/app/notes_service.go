package app

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"jupyter-proxy-apps/internal/config"
	"jupyter-proxy-apps/internal/notebook"
	"jupyter-proxy-apps/internal/pkg/pdfextract"
)

const (
	CourseAll      = "all"
	CourseResearch = "Research"

	unansweredPrefix = "[無解答]"
	previewRunes     = 2000
)

var (
	ErrInvalidPath = errors.New("invalid path")
	ErrNotFound    = errors.New("not found")
)

var (
	dateFolderPattern = regexp.MustCompile(`^[0-9]{8}$`)
	blankLinesPattern = regexp.MustCompile(`\n{3,}`)
)

// Document is a file ready to be sent to the browser.
type Document struct {
	Name        string
	ContentType string
	Body        []byte
}

type NotesService struct {
	root          string
	studentsCSV   string
	defaultCourse string
	user          string
	renderer      *notebook.Renderer
	now           func() time.Time
	log           *logrus.Entry
}

func NewNotesService(cfg *config.Config, log *logrus.Entry) *NotesService {
	return &NotesService{
		root:          cfg.Notes.Root,
		studentsCSV:   cfg.Notes.StudentsCSV,
		defaultCourse: cfg.Notes.DefaultCourse,
		user:          cfg.Hub.User,
		renderer:      notebook.NewRenderer(),
		now:           time.Now,
		log:           log,
	}
}

func (s *NotesService) User() string {
	return s.user
}

// UserCourse looks the user up in the students CSV. Any problem falls back to
// the default course.
func (s *NotesService) UserCourse(username string) string {
	if username == "" {
		return s.defaultCourse
	}
	f, err := os.Open(s.studentsCSV)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.WithError(err).Warn("open students csv failed")
		}
		return s.defaultCourse
	}
	defer f.Close()

	course, err := findCourse(f, username)
	if err != nil {
		s.log.WithError(err).Warn("read students csv failed")
		return s.defaultCourse
	}
	if course == "" {
		return s.defaultCourse
	}
	return course
}

func findCourse(r io.Reader, username string) (string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return "", fmt.Errorf("read header failed: %w", err)
	}
	userCol, courseCol := -1, -1
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		switch name {
		case "username":
			userCol = i
		case "course":
			courseCol = i
		}
	}
	if userCol < 0 || courseCol < 0 {
		return "", errors.New("header must contain username and course")
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("read record failed: %w", err)
		}
		if userCol >= len(record) || courseCol >= len(record) {
			continue
		}
		if strings.TrimSpace(record[userCol]) == username {
			return strings.TrimSpace(record[courseCol]), nil
		}
	}
}

// AvailableCourses lists the course folders visible for course.
func (s *NotesService) AvailableCourses(course string) ([]string, error) {
	all, err := listDirs(s.root)
	if errors.Is(err, os.ErrNotExist) {
		s.log.WithField("root", s.root).Debug("notes root not found")
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list courses failed: %w", err)
	}

	if course == CourseAll {
		sort.Strings(all)
		return all, nil
	}
	wanted := []string{s.defaultCourse, course}
	if strings.EqualFold(course, CourseResearch) {
		wanted = []string{s.defaultCourse, CourseResearch}
	}

	present := make(map[string]bool, len(all))
	for _, name := range all {
		present[name] = true
	}
	out := []string{}
	for _, name := range wanted {
		if present[name] && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// DateFolders lists the lesson folders of a course. Dated folders in the
// future stay hidden.
func (s *NotesService) DateFolders(course string) ([]string, error) {
	dir, err := s.resolve(course)
	if err != nil {
		return nil, err
	}
	names, err := listDirs(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list folders failed: %w", err)
	}

	today := s.now().Format("20060102")
	out := []string{}
	for _, name := range names {
		if isAllDigits(name) && !(dateFolderPattern.MatchString(name) && name <= today) {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// PreviewFiles lists the files of a lesson folder that the viewer can show.
func (s *NotesService) PreviewFiles(course, folder string) ([]string, error) {
	dir, err := s.resolve(course, folder)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read folder failed: %w", err)
	}

	out := []string{}
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !IsPreviewable(entry.Name()) {
			continue
		}
		out = append(out, entry.Name())
	}
	sort.Strings(out)
	return out, nil
}

func IsPreviewable(name string) bool {
	lower := strings.ToLower(name)
	switch filepath.Ext(lower) {
	case ".pdf", ".html", ".md":
		return true
	case ".ipynb":
		return strings.HasPrefix(name, unansweredPrefix)
	}
	return false
}

// Preview returns a plain-text excerpt of a file.
func (s *NotesService) Preview(course, folder, file string) (string, error) {
	path, err := s.previewPath(course, folder, file)
	if err != nil {
		return "", err
	}

	var text string
	switch strings.ToLower(filepath.Ext(file)) {
	case ".pdf":
		text, err = pdfextract.ExtractFile(path)
		if err != nil {
			return "", err
		}
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read file failed: %w", err)
		}
		text, err = s.plainText(file, data)
		if err != nil {
			return "", err
		}
	}
	return excerpt(text, previewRunes), nil
}

func (s *NotesService) plainText(name string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html":
		return htmlText(data)
	case ".ipynb":
		nb, err := notebook.Parse(data)
		if err != nil {
			return "", err
		}
		return nb.PlainText(), nil
	}
	return string(data), nil
}

// htmlText keeps the text of a page, minus scripts and styles.
func htmlText(data []byte) (string, error) {
	var b strings.Builder
	skip := 0
	z := html.NewTokenizer(bytes.NewReader(data))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return "", fmt.Errorf("parse html failed: %w", err)
			}
			return blankLinesPattern.ReplaceAllString(b.String(), "\n\n"), nil
		case html.StartTagToken:
			if name, _ := z.TagName(); isHiddenElement(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isHiddenElement(name) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isHiddenElement(name []byte) bool {
	switch string(name) {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}

// View returns the document as the browser should display it. Notebooks and
// markdown are converted to HTML; a notebook that fails to convert becomes an
// error page rather than an error.
func (s *NotesService) View(course, folder, file string) (*Document, error) {
	path, err := s.previewPath(course, folder, file)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file failed: %w", err)
	}

	doc := &Document{Name: file, ContentType: "text/html; charset=utf-8"}
	switch strings.ToLower(filepath.Ext(file)) {
	case ".pdf":
		doc.ContentType = "application/pdf"
		doc.Body = data
	case ".html":
		doc.Body = data
	case ".md":
		doc.Body, err = s.renderer.MarkdownPage(data, file)
		if err != nil {
			return nil, err
		}
	case ".ipynb":
		doc.Body, err = s.renderer.Notebook(data, file)
		if err != nil {
			s.log.WithError(err).WithField("file", file).Warn("convert notebook failed")
			doc.Body = notebook.ErrorPage(err)
		}
	}
	return doc, nil
}

func (s *NotesService) previewPath(course, folder, file string) (string, error) {
	if !IsPreviewable(file) {
		return "", ErrNotFound
	}
	path, err := s.resolve(course, folder, file)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("stat file failed: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return path, nil
}

// resolve joins path elements under the notes root. Each element must be a
// single visible name.
func (s *NotesService) resolve(elems ...string) (string, error) {
	root, err := filepath.Abs(s.root)
	if err != nil {
		return "", fmt.Errorf("resolve notes root failed: %w", err)
	}
	parts := []string{root}
	for _, elem := range elems {
		if elem == "" || elem == "." || elem == ".." ||
			strings.HasPrefix(elem, ".") ||
			strings.ContainsAny(elem, `/\`) ||
			strings.ContainsRune(elem, 0) {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, elem)
		}
		parts = append(parts, elem)
	}
	path := filepath.Join(parts...)
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return path, nil
}

func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if entry.IsDir() {
			names = append(names, entry.Name())
			continue
		}
		// follow symlinked course folders
		if entry.Type()&os.ModeSymlink != 0 {
			if info, err := os.Stat(filepath.Join(dir, entry.Name())); err == nil && info.IsDir() {
				names = append(names, entry.Name())
			}
		}
	}
	return names, nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func excerpt(text string, limit int) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "…"
}
