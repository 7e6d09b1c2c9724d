package repository

import (
	"strings"

	"gorm.io/gorm"
)

// whereIfSet 值非空时追加等值条件
func whereIfSet(column, value string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if value == "" {
			return db
		}
		return db.Where(column+" = ?", value)
	}
}

// keywordMatch 多列模糊匹配，postgres 下不区分大小写
func keywordMatch(keyword string, columns ...string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			return db
		}
		clause, n := likeClause(dialectOf(db), columns)
		if n == 0 {
			return db
		}
		args := make([]interface{}, n)
		for i := range args {
			args[i] = "%" + keyword + "%"
		}
		return db.Where(clause, args...)
	}
}

func dialectOf(db *gorm.DB) string {
	if db == nil || db.Dialector == nil {
		return "sqlite"
	}
	return strings.ToLower(db.Dialector.Name())
}

func likeClause(dialect string, columns []string) (string, int) {
	op := "LIKE"
	if dialect == "postgres" {
		op = "ILIKE"
	}
	parts := make([]string, 0, len(columns))
	for _, column := range columns {
		if column = strings.TrimSpace(column); column != "" {
			parts = append(parts, column+" "+op+" ?")
		}
	}
	return strings.Join(parts, " OR "), len(parts)
}

// findPage 先统计总数再按页读取，pageSize<=0 时不分页
func findPage[T any](query *gorm.DB, page, pageSize int, order ...string) ([]T, int64, error) {
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if pageSize > 0 {
		if page < 1 {
			page = 1
		}
		query = query.Limit(pageSize).Offset((page - 1) * pageSize)
	}
	for _, o := range order {
		query = query.Order(o)
	}
	items := make([]T, 0)
	if err := query.Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
