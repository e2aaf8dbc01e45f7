package db

import (
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/Mizroch-Management/ocma-sub004/internal/credential"
	"github.com/Mizroch-Management/ocma-sub004/internal/job"
)

// Connect opens the MySQL database and migrates the schema. Fatal on error:
// nothing in either binary can run without the store.
func Connect(dsn string) *gorm.DB {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	if err := gdb.AutoMigrate(&job.Job{}, &credential.Credential{}); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	return gdb
}
