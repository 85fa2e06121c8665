package engine

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// RedactURL renders a reportable engine URL with any password masked.
func RedactURL(driverName, dsn string) string {
	dsn = strings.TrimSpace(dsn)
	switch NormalizeDriver(driverName) {
	case "postgres":
		return redactPostgres(dsn)
	case "sqlite":
		return redactSQLite(dsn)
	default:
		return driverName + "://"
	}
}

func redactPostgres(dsn string) string {
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "postgresql://"
		}
		u.Scheme = "postgresql"
		u.RawQuery = ""
		u.Fragment = ""
		var user string
		masked := false
		if u.User != nil {
			user = u.User.Username()
			_, masked = u.User.Password()
		}
		return withUserInfo(u, user, masked)
	}
	// keyword/value form
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return "postgresql://"
	}
	u := &url.URL{Scheme: "postgresql", Host: cfg.Host, Path: "/" + cfg.Database}
	if cfg.Port != 0 && cfg.Port != 5432 {
		u.Host = cfg.Host + ":" + strconv.Itoa(int(cfg.Port))
	}
	return withUserInfo(u, cfg.User, cfg.User != "" && cfg.Password != "")
}

// withUserInfo renders u with user and, when masked, a literal *** password.
// url.UserPassword would percent-encode the mask.
func withUserInfo(u *url.URL, user string, masked bool) string {
	u.User = nil
	s := u.String()
	if user == "" {
		return s
	}
	info := url.User(user).String()
	if masked {
		info += ":***"
	}
	return strings.Replace(s, "://", "://"+info+"@", 1)
}

func redactSQLite(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return "sqlite://"
	}
	return "sqlite:///" + path
}
