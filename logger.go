package politecrawl

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// defaultLogger writes to both a per-session dated log file and the
// terminal using the standard log package.
type defaultLogger struct {
	logger   *log.Logger
	siteName string
}

// newDefaultLogger creates a new instance of defaultLogger.
func newDefaultLogger(siteName string) *defaultLogger {
	currentDate := time.Now().Format("2006-01-02")
	directory := filepath.Join("storage", "logs", siteName)
	err := os.MkdirAll(directory, 0755)
	if err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	logFilePath := filepath.Join(directory, currentDate+"_application.log")

	file, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	multiWriter := io.MultiWriter(file, os.Stdout)

	return &defaultLogger{
		logger:   log.New(multiWriter, "⏱️ ", log.LstdFlags),
		siteName: siteName,
	}
}

func (l *defaultLogger) Info(format string, args ...interface{}) {
	l.logger.Printf("📢 INFO: "+format, args...)
}

func (l *defaultLogger) Warn(format string, args ...interface{}) {
	l.logger.Printf("⚠️ WARN: "+format, args...)
}

func (l *defaultLogger) Error(format string, args ...interface{}) {
	l.logger.Printf("🛑 ERROR: "+format, args...)
}

func (l *defaultLogger) Fatal(format string, args ...interface{}) {
	l.logger.Fatalf("🚨 FATAL: "+format, args...)
}

func (l *defaultLogger) Printf(format string, args ...interface{}) {
	l.logger.Printf(format, args...)
}

// Html logs an error and dumps the page markup to disk for inspection.
func (l *defaultLogger) Html(html, url, msg string) {
	l.Error(msg)
	if err := l.writePageContentToFile(html, url, msg); err != nil {
		l.logger.Printf("⚛️ HTML: %v", err)
	}
}

func (l *defaultLogger) writePageContentToFile(html, url, msg string) error {
	if html == "" {
		html = "No Page Content Found"
	}
	html = strings.TrimSpace(msg) + "\n" + html
	html = fmt.Sprintf("<!-- Time: %v \n Page Url: %s -->\n%s", time.Now(), url, html)
	directory := filepath.Join("storage", "logs", l.siteName, "html")
	if err := os.MkdirAll(directory, 0755); err != nil {
		return err
	}
	filePath := filepath.Join(directory, generateFilename(url))
	file, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.WriteString(html)
	return err
}

// generateFilename generates a filename based on URL and current date.
func generateFilename(rawUrl string) string {
	invalidChars := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	for _, char := range invalidChars {
		rawUrl = strings.ReplaceAll(rawUrl, char, "_")
	}
	currentDate := time.Now().Format("2006-01-02")
	return currentDate + "_" + rawUrl + ".html"
}
