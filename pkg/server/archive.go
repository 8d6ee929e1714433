package server

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"talksync/pkg/config"
	"talksync/pkg/storage"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// MessageOut is one archived message as listed by /messages
type MessageOut struct {
	ID          string  `json:"msg_id"`
	Type        string  `json:"msg_type"`
	Text        *string `json:"text_content"`
	Group       string  `json:"grp"`
	MemberID    string  `json:"member_id"`
	MemberName  string  `json:"member_name"`
	URL         *string `json:"url"`
	PublishedAt string  `json:"published_at"`
}

var typeNames = map[storage.TypeCode]string{
	storage.TypeText:    "text",
	storage.TypePicture: "picture",
	storage.TypeVideo:   "video",
	storage.TypeVoice:   "voice",
}

type listQuery struct {
	group  string
	member string
	date   string
	limit  int
	offset int
}

func parseListQuery(c echo.Context) (listQuery, error) {
	q := listQuery{
		group:  c.QueryParam("group"),
		member: c.QueryParam("member"),
		date:   c.QueryParam("date"),
		limit:  defaultLimit,
	}

	if q.date != "" {
		if _, err := time.Parse("20060102", q.date); err != nil || len(q.date) != 8 {
			return q, echo.NewHTTPError(http.StatusBadRequest, "date must be YYYYMMDD")
		}
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return q, echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		if n > maxLimit {
			n = maxLimit
		}
		q.limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return q, echo.NewHTTPError(http.StatusBadRequest, "offset must be a non-negative integer")
		}
		q.offset = n
	}
	return q, nil
}

func (s *Server) handleMessages(c echo.Context) error {
	q, err := parseListQuery(c)
	if err != nil {
		return err
	}

	var out []MessageOut
	for _, group := range s.config.Groups.Enabled {
		if q.group != "" && q.group != group {
			continue
		}
		gc, err := config.LoadGroup(s.config.Groups.ConfigDir, group)
		if err != nil {
			s.logger.WithError(err).DebugWithFields("Skipping group in listing", map[string]interface{}{
				"group": group,
			})
			continue
		}
		for _, m := range gc.Members {
			if q.member != "" && q.member != m.Name {
				continue
			}
			msgs, err := s.memberMessages(gc, m, q.date)
			if err != nil {
				if !os.IsNotExist(err) {
					return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
				}
				continue
			}
			out = append(out, msgs...)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return storage.LessID(out[i].ID, out[j].ID)
	})

	if q.offset >= len(out) {
		out = []MessageOut{}
	} else {
		out = out[q.offset:]
	}
	if len(out) > q.limit {
		out = out[:q.limit]
	}
	return c.JSON(http.StatusOK, out)
}

// memberMessages folds the artifacts of one member into messages. A picture
// contributes its .jpg as URL and its .txt as text.
func (s *Server) memberMessages(gc *config.GroupConfig, m config.Member, date string) ([]MessageOut, error) {
	dir := gc.MemberDir(m)
	files, err := storage.ListArtifacts(dir)
	if err != nil {
		return nil, err
	}

	var (
		out   []MessageOut
		index = make(map[string]int)
	)
	for _, f := range files {
		if date != "" && !strings.HasPrefix(f.Stamp, date) {
			continue
		}

		key := f.Stem()
		i, ok := index[key]
		if !ok {
			published, _ := f.Time()
			out = append(out, MessageOut{
				ID:          f.ID,
				Type:        typeNames[f.Type],
				Group:       gc.Group,
				MemberID:    m.ID,
				MemberName:  m.Name,
				PublishedAt: published.Format(time.RFC3339),
			})
			i = len(out) - 1
			index[key] = i
		}

		if f.Ext == storage.ExtText {
			content, err := os.ReadFile(filepath.Join(dir, f.Name))
			if err != nil {
				return nil, err
			}
			text := string(content)
			out[i].Text = &text
			continue
		}
		url := s.fileURL(gc.Group, m.Name, f.Name)
		out[i].URL = &url
	}
	return out, nil
}

func (s *Server) fileURL(group, member, name string) string {
	return strings.TrimRight(s.config.Server.FileBaseURL, "/") + "/files/" + group + "/" + member + "/" + name
}

// handleFile serves one artifact. Only configured members and parseable
// artifact names are reachable.
func (s *Server) handleFile(c echo.Context) error {
	group, member, name := c.Param("group"), c.Param("member"), c.Param("file")

	if _, err := storage.ParseFileName(name); err != nil || !storage.IsTracked(name) || filepath.Base(name) != name {
		return echo.NewHTTPError(http.StatusNotFound, "file not found")
	}

	gc, err := s.enabledGroup(group)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "group not found")
	}
	for _, m := range gc.Members {
		if m.Name == member {
			return c.File(filepath.Join(gc.MemberDir(m), name))
		}
	}
	return echo.NewHTTPError(http.StatusNotFound, "member not found")
}

func (s *Server) enabledGroup(group string) (*config.GroupConfig, error) {
	for _, g := range s.config.Groups.Enabled {
		if g == group {
			return config.LoadGroup(s.config.Groups.ConfigDir, group)
		}
	}
	return nil, os.ErrNotExist
}
