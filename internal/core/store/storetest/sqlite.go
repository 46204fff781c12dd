// Package storetest opens throwaway sqlite databases for repository and service tests.
package storetest

import (
	"database/sql"
	"fmt"
	"sync/atomic"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	dmaccess "github.com/frahmantamala/bookkeeping/internal/core/datamodel/access"
	dmaccount "github.com/frahmantamala/bookkeeping/internal/core/datamodel/account"
	dmaudit "github.com/frahmantamala/bookkeeping/internal/core/datamodel/audit"
	dmreimbursement "github.com/frahmantamala/bookkeeping/internal/core/datamodel/reimbursement"
	dmtransaction "github.com/frahmantamala/bookkeeping/internal/core/datamodel/transaction"
	dmuser "github.com/frahmantamala/bookkeeping/internal/core/datamodel/user"
)

// Models lists every table the application owns.
func Models() []interface{} {
	return []interface{}{
		&dmuser.User{},
		&dmaccess.Company{},
		&dmaccess.CompanyAccess{},
		&dmaccount.Account{},
		&dmtransaction.Transaction{},
		&dmtransaction.Payment{},
		&dmtransaction.SettlementEvent{},
		&dmreimbursement.Request{},
		&dmreimbursement.Event{},
		&dmreimbursement.TrackingCode{},
		&dmaudit.Log{},
	}
}

var dbSeq atomic.Int64

// OpenSQLite returns a private in-memory database with all tables migrated.
// The gorm pool is pinned to one connection. A second idle connection keeps the
// named memory database alive when the pool discards its connection, as it does
// when a context is cancelled mid-transaction.
func OpenSQLite() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:storetest%d?mode=memory&cache=shared", dbSeq.Add(1))

	keeper, err := sql.Open(sqlite.DriverName, dsn)
	if err != nil {
		return nil, err
	}
	if err := keeper.Ping(); err != nil {
		_ = keeper.Close()
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		_ = keeper.Close()
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		_ = keeper.Close()
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(Models()...); err != nil {
		_ = keeper.Close()
		return nil, err
	}
	return db, nil
}
