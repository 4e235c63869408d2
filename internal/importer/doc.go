// Package importer загружает тестовые процедуры из YAML.
//
// Файл может содержать несколько документов, разделённых "---";
// каждый документ описывает одну процедуру:
//
//	name: Power board bring-up
//	description: Rev B
//	steps:
//	  - kind: VOLTAGE
//	    parameter_name: 3V3 rail
//	    min: 3.2
//	    max: 3.4
//	  - kind: QUESTION
//	    text: Power LED is lit?
//	    required_answer: true
//	  - kind: INSTRUCTION
//	    text: Connect the JTAG probe
//
// Все документы проверяются до первой записи: ошибка в любом из них
// отменяет импорт целиком.
package importer
