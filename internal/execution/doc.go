// Package execution реализует выполнение тестовых процедур на платах.
//
// Структура:
//   - service.go       — Service (SubmitStep, Complete, SignOff, ...)
//   - tracker.go       — Tracker и MemoryTracker
//   - redis_tracker.go — RedisTracker
//   - errors.go        — ошибки выполнения
//
// Сессия открывается лениво: первый принятый шаг оператора на плате
// создаёт Session и запоминает её в Tracker как текущую для оператора.
// Если оператор переходит к другой плате, следующий шаг откроет новую
// сессию, а прежняя останется INCOMPLETE (её освободит sweeper).
//
// Использование:
//
//	svc := execution.New(execution.Config{
//	    Configs:   testConfigRepo,
//	    Units:     batchRepo,
//	    Sessions:  sessionRepo,
//	    Results:   resultRepo,
//	    Tracker:   execution.NewRedisTracker(redisClient, "", 0), // опционально
//	    Publisher: publisher,                                     // опционально
//	    Logger:    logger,
//	})
//
//	res, state, err := svc.SubmitStep(ctx, operator, pcbID, stepID, "5.02")
//	if errors.Is(err, execution.ErrInvalidInput) {
//	    // ввод отклонён, ничего не записано
//	}
package execution
