package types

// StatsQuery 仓库统计查询参数.
type StatsQuery struct {
	Days int `form:"days" rule:"omitempty,min=1,max=60"` // 趋势天数，默认 14
}

// StatsImages 图像数量与体素总量，体素为 X*Y*C*Z*T.
type StatsImages struct {
	Total   int   `json:"total"`
	Active  int   `json:"active"`
	Deleted int   `json:"deleted"`
	Voxels  int64 `json:"voxels"`
}

// StatsImports 导入完成情况.
type StatsImports struct {
	Total      int `json:"total"`
	Complete   int `json:"complete"`
	Incomplete int `json:"incomplete"`
}

// StatsFilesets fileset 构建情况.
type StatsFilesets struct {
	Total    int `json:"total"`
	Complete int `json:"complete"`
}

// StatsFormatItem 按瓦片格式聚合的活跃图像.
type StatsFormatItem struct {
	Format string `json:"format"`
	Count  int    `json:"count"`
	Voxels int64  `json:"voxels"`
}

// StatsTrendPoint 趋势点（按日）.
type StatsTrendPoint struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// RepositoryStats 仓库汇总统计.
type RepositoryStats struct {
	RepositoryUUID string            `json:"repository_uuid"`
	Images         StatsImages       `json:"images"`
	Imports        StatsImports      `json:"imports"`
	Filesets       StatsFilesets     `json:"filesets"`
	Formats        []StatsFormatItem `json:"formats"`
	Trend          []StatsTrendPoint `json:"trend"` // 每日新注册的图像
}
