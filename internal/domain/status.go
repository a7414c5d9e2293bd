package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
//	          (или) → CANCELLED (из PENDING или RUNNING)
type RunStatus string

const (
	// RunStatusPending — run создан, но ещё не начал выполняться.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — все экземпляры стадий завершились успешно.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — стадия упала или нарушен протокол канала.
	RunStatusFailed RunStatus = "FAILED"

	// RunStatusCancelled — run отменён (сигнал или отмена контекста).
	RunStatusCancelled RunStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// InstanceStatus — статус экземпляра стадии.
//
// Жизненный цикл:
//
//	PENDING → READY → RUNNING → SUCCEEDED
//	                          ↘ FAILED
//
// Повторных попыток нет: FAILED финален и завершает весь run.
type InstanceStatus string

const (
	// InstanceStatusPending — входы ещё не удовлетворены.
	InstanceStatusPending InstanceStatus = "PENDING"

	// InstanceStatusReady — все входы связаны, ждёт свободного слота.
	InstanceStatusReady InstanceStatus = "READY"

	// InstanceStatusRunning — инструмент выполняется.
	InstanceStatusRunning InstanceStatus = "RUNNING"

	// InstanceStatusSucceeded — выход ноль и все объявленные выходы на месте.
	InstanceStatusSucceeded InstanceStatus = "SUCCEEDED"

	// InstanceStatusFailed — ненулевой код выхода или нет объявленного выхода.
	InstanceStatusFailed InstanceStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s InstanceStatus) IsTerminal() bool {
	switch s {
	case InstanceStatusSucceeded, InstanceStatusFailed:
		return true
	default:
		return false
	}
}

// instanceTransitions — допустимые переходы состояний экземпляра.
var instanceTransitions = map[InstanceStatus][]InstanceStatus{
	InstanceStatusPending: {InstanceStatusReady},
	InstanceStatusReady:   {InstanceStatusRunning},
	InstanceStatusRunning: {InstanceStatusSucceeded, InstanceStatusFailed},
}

// CanTransition проверяет, допустим ли переход from → to.
func (s InstanceStatus) CanTransition(to InstanceStatus) bool {
	for _, next := range instanceTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
