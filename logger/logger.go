// Package logger writes one JSON object per line to stdout.
package logger

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

type Fields map[string]any

func Init() {
	log.SetOutput(os.Stdout)
	log.SetFlags(0)
}

func Info(msg string, fields Fields) {
	write("INFO", msg, fields)
}

func Warn(msg string, fields Fields) {
	write("WARN", msg, fields)
}

func Error(msg string, fields Fields) {
	write("ERROR", msg, fields)
}

func Fatal(msg string, fields Fields) {
	write("FATAL", msg, fields)
	os.Exit(1)
}

func write(level, msg string, fields Fields) {
	entry := map[string]any{
		"time":  time.Now().UTC().Format(time.RFC3339),
		"level": level,
		"msg":   msg,
	}
	for k, v := range fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		entry[k] = v
	}

	b, err := json.Marshal(entry)
	if err != nil {
		log.Printf(`{"level":"ERROR","msg":"logger: failed to encode entry","cause":%q}`, err.Error())
		return
	}
	log.Println(string(b))
}
