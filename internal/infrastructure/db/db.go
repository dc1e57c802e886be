package db

import (
	"clientwatch/internal/config"
	"clientwatch/internal/model"
	"clientwatch/pkg/db"

	"gorm.io/gorm"
)

var DB *gorm.DB

func init() {
	var err error

	DB, err = db.NewDatabase(db.Config{
		Host:     config.File.DataBaseConfig.Host,
		Port:     config.File.DataBaseConfig.Port,
		UserName: config.File.DataBaseConfig.UserName,
		DBName:   config.File.DataBaseConfig.DBName,
		Password: config.File.DataBaseConfig.Password,
		SSLMode:  config.File.DataBaseConfig.SSLMode,
	})
	if err != nil {
		panic(err)
	}

	DB.AutoMigrate(
		&model.Employee{},
		&model.Message{},
		&model.Notification{},
		&model.DeferredMessage{},
		&model.SystemSetting{},
	)
}
