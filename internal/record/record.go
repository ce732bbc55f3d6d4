package record

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/MarcFord/netlog/internal/level"
	"github.com/MarcFord/netlog/internal/reqctx"
)

// Standard Bunyan fields
const (
	FieldVersion  = "v"
	FieldName     = "name"
	FieldLevel    = "level"
	FieldTime     = "time"
	FieldMsg      = "msg"
	FieldHostname = "hostname"
	FieldPid      = "pid"
)

// Cached system values to avoid repeated syscalls
var (
	cachedHostname string
	cachedPid      int
	cacheOnce      sync.Once
)

func initCachedValues() {
	hostname, err := os.Hostname()
	if err != nil {
		cachedHostname = "unknown"
	} else {
		cachedHostname = hostname
	}
	cachedPid = os.Getpid()
}

// Builder constructs log records stamped with the application identity.
type Builder struct {
	appName     string
	service     string
	environment string
}

// NewBuilder returns a Builder for the given application identity.
func NewBuilder(appName, service, environment string) *Builder {
	cacheOnce.Do(initCachedValues)
	return &Builder{
		appName:     appName,
		service:     service,
		environment: environment,
	}
}

// New creates a log record with the required Bunyan fields plus the
// application identity fields.
func (b *Builder) New(lvl level.Level, msg string) map[string]interface{} {
	return map[string]interface{}{
		FieldVersion:  0,
		FieldName:     b.appName,
		FieldHostname: cachedHostname,
		FieldPid:      cachedPid,
		FieldLevel:    int(lvl),
		FieldMsg:      msg,
		FieldTime:     time.Now().UTC().Format(time.RFC3339Nano),
		"service":     b.service,
		"environment": b.environment,
	}
}

// Build creates a complete record: base fields, request context when
// present, then extra fields. Extras cannot clobber the Bunyan core or
// the captured request fields.
func (b *Builder) Build(lvl level.Level, msg string, info *reqctx.RequestInfo, extra map[string]interface{}) map[string]interface{} {
	rec := b.New(lvl, msg)

	for k, v := range extra {
		if _, reserved := rec[k]; reserved {
			continue
		}
		rec[k] = v
	}

	if info != nil {
		ApplyRequestInfo(rec, info)
	}

	Normalize(rec, b.appName)
	return rec
}

// ApplyRequestInfo stamps the captured request context onto a record.
func ApplyRequestInfo(rec map[string]interface{}, info *reqctx.RequestInfo) {
	rec["request_id"] = info.RequestID
	rec["remote_addr"] = info.RemoteAddr
	if info.UserAgent != "" {
		rec["user_agent"] = info.UserAgent
	}
	if info.User != "" {
		rec["user"] = info.User
	}
	if info.Method != "" {
		rec["method"] = info.Method
	}
	if info.Path != "" {
		rec["path"] = info.Path
	}
	if info.Referer != "" {
		rec["referer"] = info.Referer
	}
	if info.Host != "" {
		rec["host"] = info.Host
	}
}

// Normalize ensures all required Bunyan fields are present with correct types.
func Normalize(rec map[string]interface{}, appName string) {
	if _, ok := rec[FieldVersion]; !ok {
		rec[FieldVersion] = 0
	} else if v, ok := rec[FieldVersion].(float64); ok {
		rec[FieldVersion] = int(v)
	}

	if _, ok := rec[FieldName]; !ok {
		rec[FieldName] = appName
	}

	if _, ok := rec[FieldLevel]; !ok {
		rec[FieldLevel] = int(level.Default)
	} else if v, ok := rec[FieldLevel].(float64); ok {
		rec[FieldLevel] = int(v)
	} else if v, ok := rec[FieldLevel].(string); ok {
		if n, err := strconv.Atoi(v); err == nil {
			rec[FieldLevel] = n
		} else if l, err := level.Parse(v); err == nil {
			rec[FieldLevel] = int(l)
		} else {
			rec[FieldLevel] = int(level.Default)
		}
	}

	if _, ok := rec[FieldHostname]; !ok {
		cacheOnce.Do(initCachedValues)
		rec[FieldHostname] = cachedHostname
	}

	if _, ok := rec[FieldPid]; !ok {
		cacheOnce.Do(initCachedValues)
		rec[FieldPid] = cachedPid
	} else if v, ok := rec[FieldPid].(float64); ok {
		rec[FieldPid] = int(v)
	}

	if _, ok := rec[FieldMsg]; !ok {
		rec[FieldMsg] = ""
	} else if _, ok := rec[FieldMsg].(string); !ok {
		rec[FieldMsg] = fmt.Sprintf("%v", rec[FieldMsg])
	}

	if _, ok := rec[FieldTime]; !ok {
		rec[FieldTime] = time.Now().UTC().Format(time.RFC3339Nano)
	}
}

// Clone makes a shallow copy so concurrent backends can read independently.
func Clone(rec map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
