package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего идентификатора магазина.
	ErrShopRequired = errors.New("shop_id is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")
	// Ошибка неизвестного статуса заказа.
	ErrStatusUnknown = errors.New("order status is unknown")
	// Ошибка несогласованности причин отмены/отказа/провала со статусом.
	ErrReasonMismatch = errors.New("order reason does not match status")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrShopNotFound возвращается, если магазин не найден.
	ErrShopNotFound = errors.New("shop not found")
	// ErrPromotionNotFound возвращается, если акция не найдена.
	ErrPromotionNotFound = errors.New("promotion not found")
	// ErrPromotionExhausted: лимит использований акции исчерпан.
	ErrPromotionExhausted = errors.New("promotion usage limit reached")
	// ErrAccountNotFound возвращается, если аккаунт получателя не найден.
	ErrAccountNotFound = errors.New("account not found")
	// ErrDeviceTokenMissing: у получателя нет токена устройства для push.
	ErrDeviceTokenMissing = errors.New("recipient has no device token")
	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrInvalidTransition: текущий статус не входит в допустимые для перехода.
	ErrInvalidTransition = errors.New("order status does not allow this transition")
	// ErrReasonRequired: переход требует причину.
	ErrReasonRequired = errors.New("reason is required")
	// ErrActorForbidden: роль или владение не позволяют выполнить переход.
	ErrActorForbidden = errors.New("actor is not allowed to perform this transition")
	// ErrActorInvalid: у запроса нет корректного участника.
	ErrActorInvalid = errors.New("actor is not authenticated")
	// ErrPaymentLinkExists: ссылка на оплату уже сохранена.
	ErrPaymentLinkExists = errors.New("payment link already issued")
	// ErrTransitionUnknown: перехода нет в таблице.
	ErrTransitionUnknown = errors.New("transition is unknown")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}
