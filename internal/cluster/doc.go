// Package cluster 按两两相关性把一批候选分组，并在每组中推荐优先提交的成员。
//
// 相关系数绝对值不低于阈值的候选以连通分量归为一组，组内按 Sharpe 排序选出推荐项。
package cluster
