// Conveyor — self-hosted pipeline runner.
//
// Использование:
//
//	conveyor [--definitions DIR] [--json] <command> [flags]
//
// Команды:
//
//	serve     Демон: планировщик, /healthz, /metrics
//	run       Одноразовый запуск пайплайна
//	validate  Проверка определений
//	list      Список пайплайнов
package main

import (
	"fmt"
	"os"

	"github.com/shaiso/Conveyor/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
