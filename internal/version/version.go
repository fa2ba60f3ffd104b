package version

import "fmt"

// Заполняются через -ldflags "-X github.com/vladislavdragonenkov/checkout/internal/version.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// ServiceName — имя сервиса в логах, health и User-Agent.
const ServiceName = "checkout-service"

// Info returns version information populated via -ldflags.
func Info() (v, c, d string) { return version, commit, date }

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

// GetCommit возвращает commit сборки.
func GetCommit() string { return commit }

// GetDate возвращает дату сборки.
func GetDate() string { return date }

func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}

// UserAgent — значение заголовка User-Agent для исходящих запросов.
func UserAgent() string {
	return ServiceName + "/" + version
}
