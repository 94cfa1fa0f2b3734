package logging

// Per-category convenience helpers, Info level unless suffixed Debug.

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Infof(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debugf(format, args...) }

func Store(format string, args ...interface{})      { Get(CategoryStore).Infof(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debugf(format, args...) }

func Vector(format string, args ...interface{})      { Get(CategoryVector).Infof(format, args...) }
func VectorDebug(format string, args ...interface{}) { Get(CategoryVector).Debugf(format, args...) }

func Embedding(format string, args ...interface{}) { Get(CategoryEmbedding).Infof(format, args...) }
func EmbeddingDebug(format string, args ...interface{}) {
	Get(CategoryEmbedding).Debugf(format, args...)
}

func Bridge(format string, args ...interface{})      { Get(CategoryBridge).Infof(format, args...) }
func BridgeDebug(format string, args ...interface{}) { Get(CategoryBridge).Debugf(format, args...) }

func HTA(format string, args ...interface{})      { Get(CategoryHTA).Infof(format, args...) }
func HTADebug(format string, args ...interface{}) { Get(CategoryHTA).Debugf(format, args...) }

func Onboarding(format string, args ...interface{}) { Get(CategoryOnboarding).Infof(format, args...) }
func OnboardingDebug(format string, args ...interface{}) {
	Get(CategoryOnboarding).Debugf(format, args...)
}

func Tasks(format string, args ...interface{})      { Get(CategoryTasks).Infof(format, args...) }
func TasksDebug(format string, args ...interface{}) { Get(CategoryTasks).Debugf(format, args...) }

func Evolution(format string, args ...interface{}) { Get(CategoryEvolution).Infof(format, args...) }
func EvolutionDebug(format string, args ...interface{}) {
	Get(CategoryEvolution).Debugf(format, args...)
}

func Supervisor(format string, args ...interface{}) { Get(CategorySupervisor).Infof(format, args...) }
func SupervisorDebug(format string, args ...interface{}) {
	Get(CategorySupervisor).Debugf(format, args...)
}

func Server(format string, args ...interface{})      { Get(CategoryServer).Infof(format, args...) }
func ServerDebug(format string, args ...interface{}) { Get(CategoryServer).Debugf(format, args...) }

func Project(format string, args ...interface{})      { Get(CategoryProject).Infof(format, args...) }
func ProjectDebug(format string, args ...interface{}) { Get(CategoryProject).Debugf(format, args...) }
