// Package config 提供 RecipeFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → RECIPEFLOW_* 环境变量 的顺序加载，
// 环境变量名由各字段的 env 标签逐层拼接而成，匿名嵌入的结构体沿用外层前缀。
// 各组件的配置类型定义在组件所在的包中，这里只负责聚合与校验。
package config
