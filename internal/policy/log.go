package policy

import (
	"fmt"
	"strconv"
	"strings"
)

// LogLevel is a per-rule or per-policy syslog-style severity. Nolog
// suppresses the log rule entirely.
type LogLevel uint8

const (
	LogEmerg LogLevel = iota
	LogAlert
	LogCrit
	LogErr
	LogWarning
	LogNotice
	LogInfo
	LogDebug
	LogAudit
	LogNolog
)

func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(s) {
	case "emerg":
		return LogEmerg, nil
	case "alert":
		return LogAlert, nil
	case "crit":
		return LogCrit, nil
	case "err":
		return LogErr, nil
	case "warning", "warn":
		return LogWarning, nil
	case "notice":
		return LogNotice, nil
	case "info":
		return LogInfo, nil
	case "debug":
		return LogDebug, nil
	case "audit":
		return LogAudit, nil
	case "nolog":
		return LogNolog, nil
	}
	return 0, fmt.Errorf("invalid log level %q", s)
}

// Nflog reports whether this level produces a log rule at all.
func (l LogLevel) Nflog() bool { return l != LogNolog }

// Number is the numeric severity carried in the nflog prefix. Audit
// maps onto the debug severity.
func (l LogLevel) Number() uint8 {
	if l == LogAudit {
		return uint8(LogDebug)
	}
	return uint8(l)
}

func (l LogLevel) String() string {
	switch l {
	case LogEmerg:
		return "emerg"
	case LogAlert:
		return "alert"
	case LogCrit:
		return "crit"
	case LogErr:
		return "err"
	case LogWarning:
		return "warning"
	case LogNotice:
		return "notice"
	case LogInfo:
		return "info"
	case LogDebug:
		return "debug"
	case LogAudit:
		return "audit"
	}
	return "nolog"
}

// RateUnit is the time unit of a log rate limit.
type RateUnit uint8

const (
	RateSecond RateUnit = iota
	RateMinute
	RateHour
	RateDay
)

func ParseRateUnit(s string) (RateUnit, error) {
	switch s {
	case "second":
		return RateSecond, nil
	case "minute":
		return RateMinute, nil
	case "hour":
		return RateHour, nil
	case "day":
		return RateDay, nil
	}
	return 0, fmt.Errorf("invalid rate unit %q", s)
}

func (u RateUnit) String() string {
	switch u {
	case RateMinute:
		return "minute"
	case RateHour:
		return "hour"
	case RateDay:
		return "day"
	}
	return "second"
}

// LogRateLimit throttles how often logged packets emit nflog entries.
// The zero value of the option string parses to the enabled default of
// one entry per second with a burst of five.
type LogRateLimit struct {
	Enabled bool
	Rate    int64
	Unit    RateUnit
	Burst   int64
}

func DefaultLogRateLimit() LogRateLimit {
	return LogRateLimit{Enabled: true, Rate: 1, Unit: RateSecond, Burst: 5}
}

// ParseLogRateLimit parses "enable=1,rate=1/second,burst=5". Every key
// is optional and fills in from the default.
func ParseLogRateLimit(s string) (LogRateLimit, error) {
	limit := DefaultLogRateLimit()

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		key, value, ok := strings.Cut(part, "=")
		if !ok {
			// a bare value is the enable flag
			enabled, err := ParseBool(part)
			if err != nil {
				return LogRateLimit{}, fmt.Errorf("invalid rate limit option %q", part)
			}
			limit.Enabled = enabled
			continue
		}

		switch key {
		case "enable":
			enabled, err := ParseBool(value)
			if err != nil {
				return LogRateLimit{}, err
			}
			limit.Enabled = enabled
		case "rate":
			rateStr, unitStr, hasUnit := strings.Cut(value, "/")
			rate, err := strconv.ParseInt(rateStr, 10, 64)
			if err != nil || rate <= 0 {
				return LogRateLimit{}, fmt.Errorf("invalid rate %q", value)
			}
			limit.Rate = rate
			if hasUnit {
				unit, err := ParseRateUnit(unitStr)
				if err != nil {
					return LogRateLimit{}, err
				}
				limit.Unit = unit
			}
		case "burst":
			burst, err := strconv.ParseInt(value, 10, 64)
			if err != nil || burst <= 0 {
				return LogRateLimit{}, fmt.Errorf("invalid burst %q", value)
			}
			limit.Burst = burst
		default:
			return LogRateLimit{}, fmt.Errorf("unknown rate limit key %q", key)
		}
	}
	return limit, nil
}
