package queue

// 主题命名规范：minerva.<域>.<动作>.
const (
	// TopicImportCompleted 导入完成，触发 fileset 提取.
	TopicImportCompleted = "minerva.import.completed"
	// TopicFilesetBuilt fileset 提取完成，注册表据此创建 Fileset 并关联图像.
	TopicFilesetBuilt = "minerva.fileset.built"
)

// Topics 本服务使用的全部主题.
var Topics = []string{TopicImportCompleted, TopicFilesetBuilt}
