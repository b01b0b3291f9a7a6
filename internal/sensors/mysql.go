package sensors

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/Agrid-Dev/heatpumpctl/internal/heating"
)

// DBConfig locates the MySQL database holding sensor history.
type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Name     string
}

// DSN renders cfg for the mysql driver.
func (c DBConfig) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	mc.DBName = c.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	return mc.FormatDSN()
}

// OpenDB opens a pooled connection. The connection is not checked until
// first use.
func OpenDB(c DBConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", c.DSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	return db, nil
}

const latestReadingsQuery = "select `s`.`name`, `r`.`value`, `r`.`taken_at` " +
	"from `reading` `r` join `sensor` `s` on `s`.`id` = `r`.`sensor_id` " +
	"where `r`.`id` in (select max(`id`) from `reading` group by `sensor_id`)"

// MySQL reads the latest row per sensor from the reading table. Rows older
// than MaxAge are dropped so stale values never reach the engine.
type MySQL struct {
	db     *sql.DB
	maxAge time.Duration
	now    func() time.Time
	log    *slog.Logger
}

func NewMySQL(db *sql.DB, maxAge time.Duration, logger *slog.Logger) (*MySQL, error) {
	if maxAge < 0 {
		return nil, ErrNegativeMaxAge
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MySQL{db: db, maxAge: maxAge, now: time.Now, log: logger}, nil
}

func (m *MySQL) Read(ctx context.Context) (map[heating.Sensor]heating.Reading, error) {
	rows, err := m.db.QueryContext(ctx, latestReadingsQuery)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()
	return m.scan(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func (m *MySQL) scan(rows rowScanner) (map[heating.Sensor]heating.Reading, error) {
	now := m.now()
	out := make(map[heating.Sensor]heating.Reading)
	for rows.Next() {
		var (
			name  string
			value sql.NullFloat64
			at    time.Time
		)
		if err := rows.Scan(&name, &value, &at); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		s, err := heating.ParseSensor(name)
		if err != nil {
			m.log.Debug("ignoring reading", "sensor", name)
			continue
		}
		if !value.Valid {
			continue
		}
		if m.maxAge > 0 && now.Sub(at) > m.maxAge {
			m.log.Warn("stale reading dropped", "sensor", s, "age", now.Sub(at).Round(time.Second))
			continue
		}
		out[s] = heating.Reading{Value: value.Float64, At: at}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNoReadings
	}
	return out, nil
}
