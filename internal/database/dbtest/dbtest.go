// Package dbtest 提供基于内存 SQLite 的测试数据库。
package dbtest

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"hirelane/internal/database"
)

// Open 返回一个已迁移全部模型的独立内存数据库。
// 连接数限制为 1，保证同一测试内的所有查询落在同一个内存库上。
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sqlite: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// SeedUser 创建一个用户。
func SeedUser(t testing.TB, db *gorm.DB, username string) database.User {
	t.Helper()
	user := database.User{Username: username, PasswordHash: "x"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// SeedJob 创建一个归属 ownerID 的职位。
func SeedJob(t testing.TB, db *gorm.DB, ownerID uint, title string) database.Job {
	t.Helper()
	job := database.Job{Title: title, Description: title + " description", Status: database.JobStatusOpen, UserID: ownerID}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job
}

// SeedCandidate 在职位下创建候选人，UserID 跟随职位 Owner。
func SeedCandidate(t testing.TB, db *gorm.DB, job database.Job, name string, tags ...database.Tag) database.Candidate {
	t.Helper()
	c := database.Candidate{
		JobID:     job.ID,
		UserID:    job.UserID,
		Name:      name,
		Email:     name + "@example.com",
		ResumeKey: "resumes/" + name + ".pdf",
		Status:    "NEW",
		Tags:      tags,
	}
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("seed candidate: %v", err)
	}
	return c
}
